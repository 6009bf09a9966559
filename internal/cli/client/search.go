package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the fragments closest to a query",
		Long:  "Runs a semantic search over the corpus without generating an answer.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSearch(cmd, strings.Join(args, " "), k, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of fragments to return (server default when 0)")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, k int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post(cmd.Context(), "/search", SearchRequest{Query: query, K: resolveK(k)})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(resp.Data, &searchResp); err != nil {
		return fmt.Errorf("failed to parse search results: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		output, _ := json.MarshalIndent(searchResp, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}

	if len(searchResp.Results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	fmt.Fprintf(out, "Found %d results:\n\n", len(searchResp.Results))
	for i, r := range searchResp.Results {
		fmt.Fprintf(out, "%d. %s #%d (%s)\n", i+1, titleStyle.Render(r.DocumentID), r.SequenceIndex, formatScore(r.Score))
		fmt.Fprintf(out, "   %s\n", truncate(r.Content, 160))
		fmt.Fprintf(out, "   %s\n", mutedStyle.Render(fmt.Sprintf("offsets %d-%d, fragment %s", r.StartOffset, r.EndOffset, r.FragmentID)))
		if i < len(searchResp.Results)-1 {
			fmt.Fprintln(out, separator())
		}
	}
	return nil
}

// resolveK falls back to the top_k of the client config.
func resolveK(k int) int {
	if k > 0 {
		return k
	}
	if cfg, err := LoadGlobalConfig(); err == nil && cfg != nil {
		return cfg.TopK
	}
	return 0
}
