package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ListCmd creates the list command.
func ListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List documents in the corpus",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runList(cmd, outputJSON)
		},
	}
}

func runList(cmd *cobra.Command, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(cmd.Context(), "/documents")
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	var docs []Document
	if err := json.Unmarshal(resp.Data, &docs); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		output, _ := json.MarshalIndent(docs, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}

	if len(docs) == 0 {
		fmt.Fprintln(out, "No documents found.")
		return nil
	}

	fmt.Fprintf(out, "Found %d documents:\n\n", len(docs))
	for i, d := range docs {
		fmt.Fprintf(out, "%d. %s [%s]\n", i+1, titleStyle.Render(d.ID), d.Format)
		fmt.Fprintf(out, "   File: %s, %d bytes, %d fragments\n", d.FileName, d.SizeBytes, d.Fragments)
		fmt.Fprintf(out, "   Ingested: %s\n", d.IngestedAt)
	}
	return nil
}
