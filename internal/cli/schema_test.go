package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoot() *cobra.Command {
	root := &cobra.Command{Use: "lexis", Short: "root"}
	root.PersistentFlags().Bool("output", false, "Output as JSON")
	AddHelpJSONFlag(root)
	DocumentEnv(root, "LEXIS_API_URL")

	convs := &cobra.Command{Use: "conversations", Aliases: []string{"conv"}, Short: "conversations"}
	show := &cobra.Command{Use: "show <id>", Short: "show one", Run: func(*cobra.Command, []string) {}}
	convs.AddCommand(show)

	ask := &cobra.Command{Use: "ask <question>", Short: "ask", Run: func(*cobra.Command, []string) {}}
	ask.Flags().IntP("k", "k", 0, "fragments")
	ask.Flags().String("conversation", "", "conversation id")
	_ = ask.MarkFlagRequired("conversation")

	hidden := &cobra.Command{Use: "debug", Hidden: true, Run: func(*cobra.Command, []string) {}}
	root.AddCommand(convs, ask, hidden)
	return root
}

func TestGenerateSchema(t *testing.T) {
	root := testRoot()
	schema := GenerateSchema(root)

	assert.Equal(t, "lexis", schema.Name)
	assert.Equal(t, []string{"LEXIS_API_URL"}, schema.Env)
	require.Len(t, schema.Subcommands, 2)

	var ask CommandSchema
	for _, sub := range schema.Subcommands {
		if sub.Name == "ask" {
			ask = sub
		}
	}
	require.Equal(t, "ask", ask.Name)
	assert.Equal(t, []string{"LEXIS_API_URL"}, ask.Env)

	flags := map[string]FlagSchema{}
	for _, f := range ask.Flags {
		flags[f.Name] = f
	}
	assert.True(t, flags["conversation"].Required)
	assert.False(t, flags["k"].Required)
	assert.Equal(t, "k", flags["k"].Shorthand)
	assert.Equal(t, "int", flags["k"].Type)

	require.Len(t, ask.InheritedFlags, 1)
	assert.Equal(t, "output", ask.InheritedFlags[0].Name)
}

func TestHelpJSONTarget(t *testing.T) {
	root := testRoot()

	_, ok := helpJSONTarget(root, []string{"ask", "question"})
	assert.False(t, ok)

	target, ok := helpJSONTarget(root, []string{"--output", "conv", "show", "--help-json"})
	require.True(t, ok)
	assert.Equal(t, "show", target.Name())

	target, ok = helpJSONTarget(root, []string{"ask", "what", "--help-json"})
	require.True(t, ok)
	assert.Equal(t, "ask", target.Name())

	target, ok = helpJSONTarget(root, []string{"--help-json"})
	require.True(t, ok)
	assert.Equal(t, "lexis", target.Name())
}

func TestPrintSchema(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintSchema(&buf, testRoot()))

	var decoded CommandSchema
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "lexis", decoded.Name)
	assert.Len(t, decoded.Subcommands, 2)
}
