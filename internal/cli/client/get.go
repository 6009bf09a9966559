package client

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// GetCmd creates the get command.
func GetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <document_id>",
		Short:   "Show a document",
		Long:    "Shows a document's catalog entry including its fragment IDs.",
		Aliases: []string{"view"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runGet(cmd, args[0], outputJSON)
		},
	}
}

func runGet(cmd *cobra.Command, documentID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(cmd.Context(), "/documents/"+url.PathEscape(documentID))
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		output, _ := json.MarshalIndent(doc, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}

	fmt.Fprintf(out, "ID: %s\n", titleStyle.Render(doc.ID))
	fmt.Fprintf(out, "File: %s\n", doc.FileName)
	fmt.Fprintf(out, "Format: %s\n", doc.Format)
	fmt.Fprintf(out, "Size: %d bytes\n", doc.SizeBytes)
	fmt.Fprintf(out, "SHA-256: %s\n", doc.SHA256)
	fmt.Fprintf(out, "Ingested: %s\n", doc.IngestedAt)
	fmt.Fprintf(out, "Fragments: %d\n", doc.Fragments)
	for i, id := range doc.FragmentIDs {
		fmt.Fprintf(out, "  %d. %s\n", i, mutedStyle.Render(id))
	}
	return nil
}
