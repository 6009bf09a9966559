package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ReindexCmd creates the reindex command.
func ReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Re-ingest every document from its stored bytes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := api.Post(cmd.Context(), "/documents/reindex", nil)
			if err != nil {
				return fmt.Errorf("reindex failed: %w", err)
			}

			var results []IngestResult
			if err := json.Unmarshal(resp.Data, &results); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				output, _ := json.MarshalIndent(results, "", "  ")
				fmt.Fprintln(out, string(output))
				return nil
			}
			printIngestResults(out, results)
			return nil
		},
	}
}
