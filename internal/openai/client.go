package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/lexis/internal/domain"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the dimension of text-embedding-3-small vectors
	DefaultEmbeddingDimensions = 1536
	// DefaultBatchSize bounds the number of inputs per embeddings request
	DefaultBatchSize = 64
	// DefaultConcurrency bounds the number of in-flight embeddings requests
	DefaultConcurrency = 4
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Client embeds texts in batches through the OpenAI API.
type Client struct {
	api         EmbeddingAPI
	model       string
	dimensions  int
	batchSize   int
	concurrency int
	limiter     *rate.Limiter
}

type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAIAdapter(client *openai.Client, model openai.EmbeddingModel, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}
}

// CreateEmbeddings calls the OpenAI API and returns vectors in input order.
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	}
	// Only the text-embedding-3 family accepts a reduced output size.
	if a.dimensions > 0 && strings.HasPrefix(string(a.model), "text-embedding-3") {
		req.Dimensions = a.dimensions
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("unexpected embedding index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}

	return out, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	BatchSize           int
	Concurrency         int
	// RequestsPerSecond throttles embeddings requests; zero disables throttling.
	RequestsPerSecond float64
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	adapter := NewOpenAIAdapter(newAPIClient(cfg.APIKey, cfg.BaseURL), openai.EmbeddingModel(cfg.EmbeddingModel), dimensions)
	c := newClient(adapter, dimensions, cfg.BatchSize, cfg.Concurrency, cfg.RequestsPerSecond)
	c.model = string(adapter.model)
	return c
}

func newClient(api EmbeddingAPI, dimensions, batchSize, concurrency int, rps float64) *Client {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Client{
		api:         api,
		model:       string(DefaultEmbeddingModel),
		dimensions:  dimensions,
		batchSize:   batchSize,
		concurrency: concurrency,
		limiter:     limiter,
	}
}

func newAPIClient(apiKey, baseURL string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(config)
}

// Embed returns one vector per text, in input order. Batches run concurrently
// and are reassembled by position. Provider failures are EmbeddingUnavailable.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyText
		}
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for offset := 0; offset < len(texts); offset += c.batchSize {
		end := offset + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[offset:end]

		g.Go(func() error {
			if err := c.limiter.Wait(gctx); err != nil {
				return domain.ErrEmbeddingUnavailable.Wrap(err)
			}

			vectors, err := c.api.CreateEmbeddings(gctx, batch)
			if err != nil {
				return domain.ErrEmbeddingUnavailable.Wrap(fmt.Errorf("failed to create embedding: %w", err))
			}
			if len(vectors) != len(batch) {
				return domain.ErrEmbeddingUnavailable.Wrap(
					fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors)))
			}

			for i, v := range vectors {
				if len(v) != c.dimensions {
					return fmt.Errorf("%w: got %d, expected %d", ErrWrongDimensions, len(v), c.dimensions)
				}
				out[offset+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the expected vector size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Model returns the embedding model identifier.
func (c *Client) Model() string {
	return c.model
}
