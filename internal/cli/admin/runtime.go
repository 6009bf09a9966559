package admin

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cloo-solutions/lexis/internal/config"
	"github.com/cloo-solutions/lexis/internal/database"
	"github.com/cloo-solutions/lexis/internal/domain"
	"github.com/cloo-solutions/lexis/internal/embedding"
	"github.com/cloo-solutions/lexis/internal/extract"
	"github.com/cloo-solutions/lexis/internal/openai"
	"github.com/cloo-solutions/lexis/internal/repository"
	"github.com/cloo-solutions/lexis/internal/service"
	"github.com/cloo-solutions/lexis/internal/sqlite"
	"github.com/cloo-solutions/lexis/internal/storage"
)

// runtimeOptions control how the backend is opened.
type runtimeOptions struct {
	migrate       bool
	migrationsDir string
	// checkSettings fails startup when the stored index settings differ from
	// the configured ones.
	checkSettings bool
}

// runtime holds the wired services of one lexisd process.
type runtime struct {
	cfg           *config.Config
	store         service.Store
	blobs         service.BlobStore
	embedder      service.Embedder
	generator     service.Generator
	ingestion     *service.IngestionService
	conversations *service.ConversationService
	chat          *service.ChatService
	closers       []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func openRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	rt := &runtime{cfg: cfg}
	logger := zap.L()

	switch cfg.Backend {
	case config.BackendPostgres:
		if opts.migrate {
			dir := opts.migrationsDir
			if dir == "" {
				dir = database.DefaultMigrationsDir
			}
			if err := database.Migrate(cfg.DatabaseURL, dir); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		rt.store = repository.NewStore(pool)
		logger.Info("connected to postgres")
	default:
		store, err := sqlite.Open(cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close sqlite store", zap.Error(err))
			}
		})
		rt.store = store
		logger.Info("opened sqlite store", zap.String("path", store.Path()))
	}

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		logger.Info("S3 bucket ready", zap.String("bucket", cfg.S3Bucket))
		rt.blobs = s3Client
	} else {
		fs, err := storage.NewFSStore(cfg.BlobDir())
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.blobs = fs
	}

	if cfg.EmbeddingProvider == config.EmbeddingHashing {
		rt.embedder = embedding.NewHashing(cfg.EmbeddingDimensions)
	} else {
		rt.embedder = openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      cfg.EmbeddingModel,
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			Concurrency:         cfg.EmbeddingConcurrency,
			RequestsPerSecond:   cfg.EmbeddingRateLimit,
		})
	}

	if cfg.HasOpenAI() {
		rt.generator = openai.NewGenerator(openai.ChatConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.ChatModel,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	} else {
		logger.Warn("no OpenAI API key configured, answers are unavailable")
		rt.generator = unconfiguredGenerator{}
	}

	rt.ingestion = service.NewIngestionService(rt.store, rt.blobs, extract.NewRegistry(), rt.embedder, cfg.IngestionConfig())
	rt.conversations = service.NewConversationService(rt.store)
	rt.chat = service.NewChatService(rt.store, rt.embedder, rt.generator, rt.conversations, cfg.ChatConfig())

	if opts.checkSettings {
		if err := rt.ingestion.EnsureSettings(ctx); err != nil {
			rt.Close()
			if errors.Is(err, domain.ErrSettingsMismatch) {
				return nil, fmt.Errorf("%w (run 'lexisd index rebuild' after changing embedding or chunk settings)", err)
			}
			return nil, err
		}
	}

	return rt, nil
}

// unconfiguredGenerator stands in when no chat provider is configured.
type unconfiguredGenerator struct{}

func (unconfiguredGenerator) Stream(context.Context, domain.Prompt) (domain.TokenStream, error) {
	return nil, domain.ErrGenerationUnavailable.Wrap(errors.New("no chat provider configured"))
}
