package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloo-solutions/lexis/internal/domain"
)

type settingsRepo struct {
	db dbtx
}

// Get returns nil when the index has not been created yet.
func (r *settingsRepo) Get(ctx context.Context) (*domain.IndexSettings, error) {
	var s domain.IndexSettings
	var metric string
	err := r.db.QueryRowContext(ctx, `
		SELECT metric, embedding_model, dimensions, chunk_size, chunk_overlap, created_at
		FROM index_settings WHERE id = 1
	`).Scan(&metric, &s.EmbeddingModel, &s.Dimensions, &s.ChunkSize, &s.ChunkOverlap, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning index settings: %w", err)
	}
	s.Metric = domain.Metric(metric)
	return &s, nil
}

func (r *settingsRepo) Save(ctx context.Context, s domain.IndexSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO index_settings (id, metric, embedding_model, dimensions, chunk_size, chunk_overlap, created_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			metric = excluded.metric,
			embedding_model = excluded.embedding_model,
			dimensions = excluded.dimensions,
			chunk_size = excluded.chunk_size,
			chunk_overlap = excluded.chunk_overlap,
			created_at = excluded.created_at
	`, string(s.Metric), s.EmbeddingModel, s.Dimensions, s.ChunkSize, s.ChunkOverlap, s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving index settings: %w", err)
	}
	return nil
}
