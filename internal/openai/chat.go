package openai

import (
	"context"
	"errors"
	"io"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/lexis/internal/domain"
)

const (
	// DefaultChatModel is the OpenAI model used for answer generation
	DefaultChatModel = openai.GPT4oMini
	// DefaultTemperature keeps answers close to the provided fragments
	DefaultTemperature = 0.1
	// DefaultMaxTokens bounds the length of a generated answer
	DefaultMaxTokens = 2048
)

// ChatStream is the subset of *openai.ChatCompletionStream used by the generator.
type ChatStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// ChatAPI opens streaming chat completions.
type ChatAPI interface {
	OpenStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error)
}

type chatAdapter struct {
	client *openai.Client
}

func (a *chatAdapter) OpenStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Generator streams grounded answers from the chat completions API.
type Generator struct {
	api         ChatAPI
	model       string
	temperature float32
	maxTokens   int
}

// NewGenerator creates a streaming generator.
func NewGenerator(cfg ChatConfig) *Generator {
	return newGenerator(&chatAdapter{client: newAPIClient(cfg.APIKey, cfg.BaseURL)}, cfg)
}

func newGenerator(api ChatAPI, cfg ChatConfig) *Generator {
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Generator{
		api:         api,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

// Stream opens a completion stream for the prompt. Failing to open the stream
// is GenerationUnavailable; errors after the first token are GenerationInterrupted.
func (g *Generator) Stream(ctx context.Context, prompt domain.Prompt) (domain.TokenStream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	for _, m := range prompt.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	stream, err := g.api.OpenStream(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, domain.ErrGenerationUnavailable.Wrap(err)
	}

	return &tokenStream{stream: stream}, nil
}

type tokenStream struct {
	stream    ChatStream
	closeOnce sync.Once
	closeErr  error
}

func (s *tokenStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", domain.ErrGenerationInterrupted.Wrap(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
		if resp.Choices[0].FinishReason != "" {
			return "", io.EOF
		}
	}
}

func (s *tokenStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.stream.Close()
	})
	return s.closeErr
}
