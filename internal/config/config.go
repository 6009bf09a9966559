package config

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/cloo-solutions/lexis/internal/domain"
	"github.com/cloo-solutions/lexis/internal/embedding"
	"github.com/cloo-solutions/lexis/internal/service"
)

// Backend names
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Embedding providers
const (
	EmbeddingOpenAI  = "openai"
	EmbeddingHashing = "hashing"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Backend     string `envconfig:"BACKEND" default:"sqlite"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	// DataDir holds the SQLite file and, without S3, the raw document bytes.
	DataDir string `envconfig:"DATA_DIR" default:"./data"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"lexis-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey  string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string  `envconfig:"OPENAI_BASE_URL"`
	ChatModel     string  `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	Temperature   float32 `envconfig:"TEMPERATURE" default:"0.1"`
	MaxTokens     int     `envconfig:"MAX_TOKENS" default:"2048"`

	EmbeddingProvider    string        `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	EmbeddingModel       string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions  int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingMaxRetries  int           `envconfig:"EMBEDDING_MAX_RETRIES" default:"3"`
	EmbeddingTimeout     time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	EmbeddingRateLimit   float64       `envconfig:"EMBEDDING_REQUESTS_PER_SECOND" default:"0"`
	EmbeddingConcurrency int           `envconfig:"EMBEDDING_CONCURRENCY" default:"4"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	TopK              int           `envconfig:"TOP_K" default:"4"`
	HistoryTurns      int           `envconfig:"HISTORY_TURNS" default:"10"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"2m"`
	MaxFileSizeMB     int           `envconfig:"MAX_FILE_SIZE_MB" default:"10"`

	// InboxDir is polled for new files when set.
	InboxDir      string        `envconfig:"INBOX_DIR"`
	InboxInterval time.Duration `envconfig:"INBOX_INTERVAL" default:"10s"`

	SentryDSN         string  `envconfig:"SENTRY_DSN"`
	SentryEnvironment string  `envconfig:"SENTRY_ENVIRONMENT" default:"development"`
	SentrySampleRate  float64 `envconfig:"SENTRY_TRACES_SAMPLE_RATE" default:"1.0"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("LEXIS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects combinations the services cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("LEXIS_DATABASE_URL is required for the postgres backend"))
		}
	case BackendSQLite:
		if c.DataDir == "" {
			errs = append(errs, errors.New("LEXIS_DATA_DIR is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	switch c.EmbeddingProvider {
	case EmbeddingOpenAI, EmbeddingHashing:
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.EmbeddingProvider))
	}

	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("embedding dimensions must be greater than 0"))
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, domain.ErrInvalidChunkConfig)
	}
	if c.TopK <= 0 {
		errs = append(errs, errors.New("top k must be greater than 0"))
	}
	if c.MaxFileSizeMB <= 0 {
		errs = append(errs, errors.New("max file size must be greater than 0"))
	}
	if c.HistoryTurns < 0 {
		errs = append(errs, errors.New("history turns cannot be negative"))
	}

	return errors.Join(errs...)
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// SQLitePath is the database file of the sqlite backend.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "lexis.db")
}

// BlobDir is where raw document bytes live when S3 is not configured.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DataDir, "blobs")
}

// EmbeddingModelName is the model recorded in the index settings.
func (c *Config) EmbeddingModelName() string {
	if c.EmbeddingProvider == EmbeddingHashing {
		return embedding.HashingModel
	}
	return c.EmbeddingModel
}

// IndexSettings are the settings a new index is created with.
func (c *Config) IndexSettings() domain.IndexSettings {
	return domain.IndexSettings{
		Metric:         domain.MetricCosine,
		EmbeddingModel: c.EmbeddingModelName(),
		Dimensions:     c.EmbeddingDimensions,
		ChunkSize:      c.ChunkSize,
		ChunkOverlap:   c.ChunkOverlap,
	}
}

func (c *Config) IngestionConfig() service.IngestionConfig {
	return service.IngestionConfig{
		Settings:            c.IndexSettings(),
		MaxFileSizeBytes:    int64(c.MaxFileSizeMB) << 20,
		EmbeddingMaxRetries: c.EmbeddingMaxRetries,
		EmbeddingTimeout:    c.EmbeddingTimeout,
	}
}

func (c *Config) ChatConfig() service.ChatConfig {
	return service.ChatConfig{
		TopK:              c.TopK,
		HistoryTurns:      c.HistoryTurns,
		GenerationTimeout: c.GenerationTimeout,
	}
}
