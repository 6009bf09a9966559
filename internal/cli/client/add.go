package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// AddCmd creates the add command.
func AddCmd() *cobra.Command {
	var progress bool

	cmd := &cobra.Command{
		Use:   "add <files or directories...>",
		Short: "Upload documents to the corpus",
		Long: `Upload documents for ingestion. Directories contribute the regular files
directly inside them.

Examples:
  # Add a single document
  lexis add contract.pdf

  # Add several documents in one request
  lexis add terms.md pricing.csv notes.txt

  # Add every file of a directory
  lexis add ./policies`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAdd(cmd, args, outputJSON, progress)
		},
	}

	cmd.Flags().BoolVar(&progress, "progress", false, "Show upload progress")

	return cmd
}

func runAdd(cmd *cobra.Command, args []string, outputJSON, progress bool) error {
	paths, err := expandPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files to upload")
	}

	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	var onProgress ProgressFunc
	if progress && !outputJSON {
		errOut := cmd.ErrOrStderr()
		onProgress = func(current, total int64) {
			if total > 0 {
				fmt.Fprintf(errOut, "\rUploading... %3d%%", min(100, current*100/total))
			}
		}
	}

	resp, err := api.UploadFiles(cmd.Context(), paths, onProgress)
	if onProgress != nil {
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	var results []IngestResult
	if err := json.Unmarshal(resp.Data, &results); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Fprintln(out, string(output))
	} else {
		printIngestResults(out, results)
	}

	for _, r := range results {
		if r.Error != "" {
			return fmt.Errorf("some documents failed to ingest")
		}
	}
	return nil
}

// expandPaths replaces directories with the regular files they contain.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", arg, err)
		}
		var names []string
		for _, e := range entries {
			if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
				names = append(names, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(names)
		paths = append(paths, names...)
	}
	return paths, nil
}

func printIngestResults(out io.Writer, results []IngestResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No documents.")
		return
	}
	for _, r := range results {
		switch {
		case r.Error != "":
			msg := r.Error
			if r.Stage != "" {
				msg = fmt.Sprintf("%s (stage: %s)", msg, r.Stage)
			}
			fmt.Fprintf(out, "%s %s: %s\n", errorStyle.Render("failed "), r.FileName, msg)
		case r.Duplicate:
			fmt.Fprintf(out, "%s %s (%s)\n", mutedStyle.Render("unchanged"), r.FileName, r.Document.ID)
		default:
			fmt.Fprintf(out, "%s %s (%s, %d fragments)\n", scoreStyle.Render("indexed  "), r.FileName, r.Document.ID, r.Document.Fragments)
		}
	}
}
