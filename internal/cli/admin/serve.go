package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/lexis/internal/api/handlers"
	"github.com/cloo-solutions/lexis/internal/config"
	"github.com/cloo-solutions/lexis/internal/jobs"
	"github.com/cloo-solutions/lexis/internal/logging"
	"github.com/cloo-solutions/lexis/internal/server"
	"github.com/cloo-solutions/lexis/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the lexis API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", "migrations", "Directory of Postgres migrations")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flush, err := logging.Setup(logging.Options{Level: cfg.LogLevel, Debug: cfg.Debug})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer flush()
	logger := zap.L()

	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		TracesSampleRate: cfg.SentrySampleRate,
		Debug:            cfg.Debug,
	})
	if err != nil {
		logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
	} else {
		defer shutdownTelemetry()
	}

	if portFlag, _ := cmd.Flags().GetString("port"); cmd.Flags().Changed("port") {
		cfg.Port = portFlag
	}
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	migrationsDir, _ := cmd.Flags().GetString("migrations")

	rt, err := openRuntime(ctx, cfg, runtimeOptions{
		migrate:       !noMigrate,
		migrationsDir: migrationsDir,
		checkSettings: true,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	var inboxWorker *jobs.Worker
	if cfg.InboxDir != "" {
		processor, err := jobs.NewInboxProcessor(cfg.InboxDir, rt.ingestion, cfg.IngestionConfig().MaxFileSizeBytes)
		if err != nil {
			return err
		}
		inboxWorker = jobs.NewWorker("inbox", processor, cfg.InboxInterval)
		go inboxWorker.Start(ctx)
	}

	router := server.NewRouter(server.RouterConfig{
		HealthHandler:       handlers.NewHealthHandler(rt.ingestion),
		DocumentHandler:     handlers.NewDocumentHandler(rt.ingestion),
		SearchHandler:       handlers.NewSearchHandler(rt.chat),
		ConversationHandler: handlers.NewConversationHandler(rt.conversations, rt.chat),
		Logger:              logger,
		MaxBodyBytes:        maxUploadBytes(cfg),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port), zap.String("backend", cfg.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	if inboxWorker != nil {
		inboxWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// maxUploadBytes leaves room for several maximum-size files and multipart
// framing in one request.
func maxUploadBytes(cfg *config.Config) int64 {
	return 4*cfg.IngestionConfig().MaxFileSizeBytes + (1 << 20)
}
