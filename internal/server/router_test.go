package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/lexis/internal/api/handlers"
	"github.com/cloo-solutions/lexis/internal/domain"
	"github.com/cloo-solutions/lexis/internal/embedding"
	"github.com/cloo-solutions/lexis/internal/extract"
	"github.com/cloo-solutions/lexis/internal/service"
	"github.com/cloo-solutions/lexis/internal/sqlite"
	"github.com/cloo-solutions/lexis/internal/storage"
)

const policyText = `Refund policy. Customers may request a refund within fourteen days of purchase.
Refunds are issued to the original payment method within five business days.
Digital goods that were downloaded are not eligible for a refund.`

type echoGenerator struct{}

func (echoGenerator) Stream(ctx context.Context, _ domain.Prompt) (domain.TokenStream, error) {
	return &echoTokens{tokens: []string{"Refunds take five business days ", "[1]."}}, nil
}

type echoTokens struct {
	tokens []string
}

func (e *echoTokens) Recv() (string, error) {
	if len(e.tokens) == 0 {
		return "", io.EOF
	}
	tok := e.tokens[0]
	e.tokens = e.tokens[1:]
	return tok, nil
}

func (e *echoTokens) Close() error { return nil }

func newTestRouter(t *testing.T, maxBody int64) http.Handler {
	t.Helper()

	store, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	embedder := embedding.NewHashing(64)
	ingestion := service.NewIngestionService(store, blobs, extract.NewRegistry(), embedder, service.IngestionConfig{
		Settings: domain.IndexSettings{
			Metric:         domain.MetricCosine,
			EmbeddingModel: embedder.Model(),
			Dimensions:     64,
			ChunkSize:      150,
			ChunkOverlap:   30,
		},
	})
	require.NoError(t, ingestion.EnsureSettings(context.Background()))

	convs := service.NewConversationService(store)
	chat := service.NewChatService(store, embedder, echoGenerator{}, convs, service.ChatConfig{TopK: 3, GenerationTimeout: time.Minute})

	return NewRouter(RouterConfig{
		HealthHandler:       handlers.NewHealthHandler(ingestion),
		DocumentHandler:     handlers.NewDocumentHandler(ingestion),
		SearchHandler:       handlers.NewSearchHandler(chat),
		ConversationHandler: handlers.NewConversationHandler(convs, chat),
		MaxBodyBytes:        maxBody,
	})
}

func do(t *testing.T, h http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func uploadBody(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, v))
}

func TestRouter_HealthBeforeIngestion(t *testing.T) {
	router := newTestRouter(t, 0)

	w := do(t, router, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var health handlers.HealthResponse
	decodeData(t, w, &health)
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.Ready)
	assert.Equal(t, embedding.HashingModel, health.EmbeddingModel)
}

func TestRouter_DocumentLifecycle(t *testing.T) {
	router := newTestRouter(t, 0)

	body, ct := uploadBody(t, "refund policy.txt", policyText)
	w := do(t, router, http.MethodPost, "/documents", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body, ct = uploadBody(t, "refund policy.txt", policyText)
	w = do(t, router, http.MethodPost, "/documents", body, ct)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/documents", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var docs []handlers.DocumentResponse
	decodeData(t, w, &docs)
	require.Len(t, docs, 1)
	assert.Equal(t, "refund_policy.txt", docs[0].ID)

	w = do(t, router, http.MethodGet, "/health", nil, "")
	var health handlers.HealthResponse
	decodeData(t, w, &health)
	assert.True(t, health.Ready)
	assert.Equal(t, 1, health.Documents)

	w = do(t, router, http.MethodPost, "/search", strings.NewReader(`{"query":"how long do refunds take","k":2}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	var search handlers.SearchResponse
	decodeData(t, w, &search)
	assert.NotEmpty(t, search.Results)
	require.Len(t, search.Sources, 1)
	assert.Equal(t, "refund_policy.txt", search.Sources[0].DocumentID)

	w = do(t, router, http.MethodPost, "/documents/reindex", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodDelete, "/documents/refund_policy.txt", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/documents/refund_policy.txt", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ConversationFlow(t *testing.T) {
	router := newTestRouter(t, 0)

	body, ct := uploadBody(t, "policy.txt", policyText)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/documents", body, ct).Code)

	w := do(t, router, http.MethodPost, "/conversations", strings.NewReader(`{}`), "application/json")
	require.Equal(t, http.StatusCreated, w.Code)
	var conv handlers.ConversationResponse
	decodeData(t, w, &conv)

	w = do(t, router, http.MethodPost, "/conversations/"+conv.ID+"/messages",
		strings.NewReader(`{"query":"How long do refunds take?"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	stream := w.Body.String()
	assert.Contains(t, stream, "event:token")
	assert.Contains(t, stream, "event:citation")
	assert.Contains(t, stream, "event:done")

	w = do(t, router, http.MethodGet, "/conversations/"+conv.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &conv)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "How long do refunds take?", conv.Title)
	assert.Equal(t, "Refunds take five business days [1].", conv.Messages[1].Content)

	w = do(t, router, http.MethodGet, "/conversations", nil, "")
	var list []handlers.ConversationResponse
	decodeData(t, w, &list)
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/conversations/"+conv.ID, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/conversations/"+conv.ID, nil, "").Code)
}

func TestRouter_MaxBodyBytes(t *testing.T) {
	router := newTestRouter(t, 512)

	body, ct := uploadBody(t, "big.txt", strings.Repeat("refund ", 200))
	w := do(t, router, http.MethodPost, "/documents", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t, 0)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/knowledge", nil, "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, router, http.MethodPut, "/documents", nil, "").Code)
}
