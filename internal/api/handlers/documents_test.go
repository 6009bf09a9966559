package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/lexis/internal/api"
	"github.com/cloo-solutions/lexis/internal/domain"
	"github.com/cloo-solutions/lexis/internal/service"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) IngestBatch(ctx context.Context, inputs []service.IngestInput) []service.IngestResult {
	args := m.Called(ctx, inputs)
	return args.Get(0).([]service.IngestResult)
}

func (m *MockDocumentService) List(ctx context.Context) ([]*domain.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) Remove(ctx context.Context, documentID string) (bool, error) {
	args := m.Called(ctx, documentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDocumentService) Reindex(ctx context.Context) ([]service.IngestResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.IngestResult), args.Error(1)
}

func newTestDocument(id string) *domain.Document {
	return domain.NewDocument(id, id, domain.FormatPlain, 42, "abc123", "documents/"+id+"/abc123",
		[]string{"f1", "f2"}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
}

func multipartRequest(t *testing.T, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestDocumentHandler_Upload_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	doc := newTestDocument("terms.txt")
	mockSvc.On("IngestBatch", mock.Anything, mock.MatchedBy(func(in []service.IngestInput) bool {
		return len(in) == 1 && in[0].FileName == "terms.txt" && string(in[0].Content) == "late fees"
	})).Return([]service.IngestResult{{FileName: "terms.txt", Document: doc}})

	w := httptest.NewRecorder()
	handler.Upload(w, multipartRequest(t, map[string]string{"terms.txt": "late fees"}))

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Data []IngestResultResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "terms.txt", resp.Data[0].Document.ID)
	assert.Equal(t, 2, resp.Data[0].Document.Fragments)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Upload_Duplicate(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("IngestBatch", mock.Anything, mock.Anything).
		Return([]service.IngestResult{{FileName: "copy.txt", Document: newTestDocument("terms.txt"), Duplicate: true}})

	w := httptest.NewRecorder()
	handler.Upload(w, multipartRequest(t, map[string]string{"copy.txt": "late fees"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"duplicate":true`)
}

func TestDocumentHandler_Upload_SingleFailure(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	stageErr := domain.NewStageError("image.png", domain.StageReceived, domain.ErrUnsupportedFormat)
	mockSvc.On("IngestBatch", mock.Anything, mock.Anything).
		Return([]service.IngestResult{{FileName: "image.png", Err: stageErr}})

	w := httptest.NewRecorder()
	handler.Upload(w, multipartRequest(t, map[string]string{"image.png": "binary"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.ErrCodeUnsupportedFormat, resp.Code)
	assert.Equal(t, "received", resp.Stage)
}

func TestDocumentHandler_Upload_PartialBatch(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("IngestBatch", mock.Anything, mock.Anything).Return([]service.IngestResult{
		{FileName: "terms.txt", Document: newTestDocument("terms.txt")},
		{FileName: "empty.txt", Err: domain.NewStageError("empty.txt", domain.StageNormalized, domain.ErrTextTooShort)},
	})

	w := httptest.NewRecorder()
	handler.Upload(w, multipartRequest(t, map[string]string{"terms.txt": "late fees", "empty.txt": " "}))

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Data []IngestResultResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, domain.ErrCodeExtractionFailed, resp.Data[1].Code)
	assert.Equal(t, "normalized", resp.Data[1].Stage)
}

func TestDocumentHandler_Upload_NoFiles(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentService))

	w := httptest.NewRecorder()
	handler.Upload(w, multipartRequest(t, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	handler.Upload(w, httptest.NewRequest(http.MethodPost, "/documents", bytes.NewBufferString("{}")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_List(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("List", mock.Anything).Return([]*domain.Document{newTestDocument("a.txt"), newTestDocument("b.txt")}, nil)

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest(http.MethodGet, "/documents", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []DocumentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Nil(t, resp.Data[0].FragmentIDs)
	assert.Equal(t, "2026-01-02T03:04:05Z", resp.Data[0].IngestedAt)
}

func TestDocumentHandler_Get(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Get", mock.Anything, "terms.txt").Return(newTestDocument("terms.txt"), nil)
	mockSvc.On("Get", mock.Anything, "missing.txt").Return(nil, domain.ErrDocumentNotFound)

	w := httptest.NewRecorder()
	handler.Get(w, withURLParam(httptest.NewRequest(http.MethodGet, "/documents/terms.txt", nil), "id", "terms.txt"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fragment_ids":["f1","f2"]`)

	w = httptest.NewRecorder()
	handler.Get(w, withURLParam(httptest.NewRequest(http.MethodGet, "/documents/missing.txt", nil), "id", "missing.txt"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_Delete(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Remove", mock.Anything, "terms.txt").Return(true, nil).Once()
	mockSvc.On("Remove", mock.Anything, "terms.txt").Return(false, nil).Once()

	for _, want := range []bool{true, false} {
		w := httptest.NewRecorder()
		handler.Delete(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/documents/terms.txt", nil), "id", "terms.txt"))
		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data struct {
				Removed bool `json:"removed"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, want, resp.Data.Removed)
	}
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Reindex(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Reindex", mock.Anything).Return([]service.IngestResult{{FileName: "terms.txt", Document: newTestDocument("terms.txt")}}, nil)

	w := httptest.NewRecorder()
	handler.Reindex(w, httptest.NewRequest(http.MethodPost, "/documents/reindex", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	mockSvc.ExpectedCalls = nil
	mockSvc.On("Reindex", mock.Anything).Return(nil, domain.ErrEmbeddingUnavailable)
	w = httptest.NewRecorder()
	handler.Reindex(w, httptest.NewRequest(http.MethodPost, "/documents/reindex", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
