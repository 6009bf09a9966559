package client

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

type deleteResult struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

// DeleteCmd creates the delete command.
func DeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document_id...>",
		Short: "Remove documents from the corpus",
		Long: `Remove documents and all of their fragments. Removing a document that
does not exist is not an error.

Examples:
  lexis delete contract.pdf
  lexis delete terms.md pricing.csv`,
		Aliases: []string{"rm"},
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDelete(cmd, args, outputJSON)
		},
	}
}

func runDelete(cmd *cobra.Command, ids []string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	results := make([]deleteResult, 0, len(ids))
	for _, id := range ids {
		resp, err := api.Delete(cmd.Context(), "/documents/"+url.PathEscape(id))
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", id, err)
		}
		var r deleteResult
		if err := json.Unmarshal(resp.Data, &r); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		results = append(results, r)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}
	for _, r := range results {
		if r.Removed {
			fmt.Fprintf(out, "Deleted: %s\n", r.ID)
		} else {
			fmt.Fprintf(out, "Not found: %s\n", r.ID)
		}
	}
	return nil
}
