package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/lexis/internal/cli"
	"github.com/cloo-solutions/lexis/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "lexisd",
		Short:        "Lexis daemon and admin CLI",
		Long:         "Lexis daemon for running the API server, ingesting files locally and maintaining the index",
		SilenceUsage: true,
	}

	cli.AddHelpJSONFlag(rootCmd)
	cli.DocumentEnv(rootCmd,
		"LEXIS_BACKEND", "LEXIS_DATABASE_URL", "LEXIS_DATA_DIR",
		"LEXIS_S3_ENDPOINT", "LEXIS_S3_BUCKET",
		"LEXIS_OPENAI_API_KEY", "LEXIS_EMBEDDING_PROVIDER", "LEXIS_EMBEDDING_MODEL",
		"LEXIS_CHUNK_SIZE", "LEXIS_CHUNK_OVERLAP", "LEXIS_INBOX_DIR", "LEXIS_SENTRY_DSN",
	)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.IndexCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
