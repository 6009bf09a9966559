//go:build integration

package openai

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/lexis/internal/domain"
)

func requireAPIKey(t *testing.T) string {
	t.Helper()
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}
	return apiKey
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestIntegration_Embed_RealAPI(t *testing.T) {
	client := NewClientWithConfig(Config{APIKey: requireAPIKey(t)})
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	texts := []string{
		"Late payments incur a penalty of two percent per month.",
		"Overdue invoices are charged a monthly late fee.",
		"The office is closed on public holidays.",
	}
	embeddings, err := client.Embed(ctx, texts)

	require.NoError(t, err)
	require.Len(t, embeddings, 3)
	for _, e := range embeddings {
		assert.Len(t, e, DefaultEmbeddingDimensions)
	}
	assert.Greater(t, dot(embeddings[0], embeddings[1]), dot(embeddings[0], embeddings[2]))
}

func TestIntegration_Stream_RealAPI(t *testing.T) {
	gen := NewGenerator(ChatConfig{APIKey: requireAPIKey(t), Model: "gpt-4o-mini", MaxTokens: 32})
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stream, err := gen.Stream(ctx, domain.Prompt{
		System: "Answer with the single word from the context.\n\nContext:\n[Document 1 - Source: a.txt]\nmarmalade",
		Messages: []domain.PromptMessage{
			{Role: domain.RoleUser, Content: "Which word is in the context?"},
		},
	})
	require.NoError(t, err)
	defer stream.Close()

	var answer strings.Builder
	for {
		tok, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		answer.WriteString(tok)
	}
	assert.Contains(t, strings.ToLower(answer.String()), "marmalade")
}
