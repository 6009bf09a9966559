package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/lexis/internal/api"
	"github.com/cloo-solutions/lexis/internal/domain"
	"github.com/cloo-solutions/lexis/internal/service"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

type DocumentService interface {
	IngestBatch(ctx context.Context, inputs []service.IngestInput) []service.IngestResult
	List(ctx context.Context) ([]*domain.Document, error)
	Get(ctx context.Context, documentID string) (*domain.Document, error)
	Remove(ctx context.Context, documentID string) (bool, error)
	Reindex(ctx context.Context) ([]service.IngestResult, error)
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Upload ingests every multipart "file" part. A single failing file is
// reported with its error status; batches always answer with per-file results.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		api.Error(w, http.StatusBadRequest, "at least one file is required")
		return
	}

	inputs := make([]service.IngestInput, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			api.Error(w, http.StatusBadRequest, "cannot read uploaded file")
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			api.Error(w, http.StatusBadRequest, "cannot read uploaded file")
			return
		}
		inputs = append(inputs, service.IngestInput{FileName: fh.Filename, Content: content})
	}

	results := h.svc.IngestBatch(r.Context(), inputs)
	if len(results) == 1 && results[0].Err != nil {
		api.HandleError(w, results[0].Err)
		return
	}

	status := http.StatusOK
	for _, res := range results {
		if res.Err == nil && !res.Duplicate {
			status = http.StatusCreated
			break
		}
	}
	api.Success(w, status, ingestResultsToResponse(results))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.List(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*DocumentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, documentToResponse(d, false))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc, true))
}

// Delete is idempotent; removed reports whether the document existed.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	removed, err := h.svc.Remove(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]interface{}{"id": id, "removed": removed})
}

func (h *DocumentHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.Reindex(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ingestResultsToResponse(results))
}
