package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/lexis/internal/config"
	"github.com/cloo-solutions/lexis/internal/logging"
	"github.com/cloo-solutions/lexis/internal/service"
)

// ErrDrift is returned by index verify when catalog and index disagree.
var ErrDrift = errors.New("index drift detected")

func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect and maintain the vector index",
		Long:  "Verify, inspect, rebuild or clear the document catalog and vector index",
	}

	cmd.PersistentFlags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.PersistentFlags().Bool("no-migrate", false, "Skip automatic database migrations")

	cmd.AddCommand(indexVerifyCmd())
	cmd.AddCommand(indexStatsCmd())
	cmd.AddCommand(indexRebuildCmd())
	cmd.AddCommand(indexClearCmd())

	return cmd
}

// withRuntime loads config, sets up logging and opens the backend for the
// duration of fn.
func withRuntime(cmd *cobra.Command, checkSettings bool, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.LogLevel
	if !cfg.Debug {
		level = "warn"
	}
	flush, err := logging.Setup(logging.Options{Level: level, Debug: cfg.Debug})
	if err != nil {
		return err
	}
	defer flush()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	rt, err := openRuntime(ctx, cfg, runtimeOptions{migrate: !noMigrate, checkSettings: checkSettings})
	if err != nil {
		return err
	}
	defer rt.Close()

	return fn(ctx, rt)
}

func outputJSON(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func indexVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the catalog and the index agree",
		Long:  "Compare the fragment IDs owned by documents with the indexed fragments. Exits non-zero on drift.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, false, func(ctx context.Context, rt *runtime) error {
				report, err := rt.ingestion.Verify(ctx)
				if err != nil {
					return err
				}
				if err := printVerifyReport(cmd, report); err != nil {
					return err
				}
				if !report.Consistent() {
					return ErrDrift
				}
				return nil
			})
		},
	}
}

func printVerifyReport(cmd *cobra.Command, report *service.VerifyReport) error {
	out := cmd.OutOrStdout()
	if outputJSON(cmd) {
		return printJSON(out, map[string]interface{}{
			"documents":  report.Documents,
			"fragments":  report.Fragments,
			"orphans":    report.Orphans,
			"missing":    report.Missing,
			"consistent": report.Consistent(),
		})
	}

	fmt.Fprintf(out, "Documents: %d\nFragments: %d\n", report.Documents, report.Fragments)
	if report.Consistent() {
		fmt.Fprintln(out, "Index is consistent")
		return nil
	}
	for _, id := range report.Orphans {
		fmt.Fprintf(out, "  orphan fragment: %s\n", id)
	}
	for _, id := range report.Missing {
		fmt.Fprintf(out, "  missing fragment: %s\n", id)
	}
	return nil
}

func indexStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, false, func(ctx context.Context, rt *runtime) error {
				stats, err := rt.ingestion.Stats(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if outputJSON(cmd) {
					data := map[string]interface{}{
						"documents": stats.Documents,
						"fragments": stats.Fragments,
					}
					if stats.Settings != nil {
						data["settings"] = stats.Settings
					}
					return printJSON(out, data)
				}

				fmt.Fprintf(out, "Documents: %d\nFragments: %d\n", stats.Documents, stats.Fragments)
				if s := stats.Settings; s != nil {
					fmt.Fprintf(out, "Model:     %s (%d dimensions, %s)\n", s.EmbeddingModel, s.Dimensions, s.Metric)
					fmt.Fprintf(out, "Chunks:    size %d, overlap %d\n", s.ChunkSize, s.ChunkOverlap)
					fmt.Fprintf(out, "Created:   %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
				} else {
					fmt.Fprintln(out, "Index not initialized")
				}
				return nil
			})
		},
	}
}

func indexRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Re-embed every document with the configured settings",
		Long:  "Replace the stored index settings with the configured ones and re-ingest every document from its stored bytes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, false, func(ctx context.Context, rt *runtime) error {
				results, err := rt.ingestion.Rebuild(ctx)
				if err != nil {
					return err
				}
				return printIngestResults(cmd, results)
			})
		},
	}
}

func indexClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every document from the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("refusing to clear the corpus without --yes")
			}
			return withRuntime(cmd, false, func(ctx context.Context, rt *runtime) error {
				n, err := rt.ingestion.Clear(ctx)
				if err != nil {
					return err
				}
				if outputJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), map[string]int{"removed": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d documents\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Confirm removal of every document")
	return cmd
}

// IngestCmd ingests local files directly into the configured backend.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <files...>",
		Short: "Ingest local files without going through the API",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := make([]service.IngestInput, 0, len(args))
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				inputs = append(inputs, service.IngestInput{FileName: filepath.Base(path), Content: content})
			}

			return withRuntime(cmd, true, func(ctx context.Context, rt *runtime) error {
				results := rt.ingestion.IngestBatch(ctx, inputs)
				if err := printIngestResults(cmd, results); err != nil {
					return err
				}
				for _, r := range results {
					if r.Err != nil {
						return fmt.Errorf("some files failed to ingest")
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations")
	return cmd
}

type ingestResultOutput struct {
	FileName   string `json:"file_name"`
	DocumentID string `json:"document_id,omitempty"`
	Fragments  int    `json:"fragments"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	Error      string `json:"error,omitempty"`
}

func printIngestResults(cmd *cobra.Command, results []service.IngestResult) error {
	rows := make([]ingestResultOutput, 0, len(results))
	for _, r := range results {
		row := ingestResultOutput{FileName: r.FileName, Duplicate: r.Duplicate}
		if r.Document != nil {
			row.DocumentID = r.Document.ID
			row.Fragments = len(r.Document.FragmentIDs)
		}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		rows = append(rows, row)
	}

	out := cmd.OutOrStdout()
	if outputJSON(cmd) {
		return printJSON(out, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No documents")
		return nil
	}
	for _, row := range rows {
		switch {
		case row.Error != "":
			fmt.Fprintf(out, "  FAILED     %s: %s\n", row.FileName, row.Error)
		case row.Duplicate:
			fmt.Fprintf(out, "  unchanged  %s (%s)\n", row.FileName, row.DocumentID)
		default:
			fmt.Fprintf(out, "  indexed    %s (%s, %d fragments)\n", row.FileName, row.DocumentID, row.Fragments)
		}
	}
	return nil
}
