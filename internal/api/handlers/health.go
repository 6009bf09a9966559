package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/lexis/internal/api"
	"github.com/cloo-solutions/lexis/internal/service"
)

type StatsProvider interface {
	Stats(ctx context.Context) (*service.IndexStats, error)
}

type HealthHandler struct {
	stats StatsProvider
}

func NewHealthHandler(stats StatsProvider) *HealthHandler {
	return &HealthHandler{stats: stats}
}

type HealthResponse struct {
	Status         string `json:"status"`
	Ready          bool   `json:"ready"`
	Documents      int    `json:"documents"`
	Fragments      int    `json:"fragments"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	Dimensions     int    `json:"dimensions,omitempty"`
}

// Health reports liveness and whether the index can answer questions.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		api.JSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}

	resp := HealthResponse{
		Status:    "ok",
		Ready:     stats.Fragments > 0,
		Documents: stats.Documents,
		Fragments: stats.Fragments,
	}
	if stats.Settings != nil {
		resp.EmbeddingModel = stats.Settings.EmbeddingModel
		resp.Dimensions = stats.Settings.Dimensions
	}
	api.Success(w, http.StatusOK, resp)
}
