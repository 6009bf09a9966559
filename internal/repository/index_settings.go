package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/lexis/internal/domain"
)

// IndexSettingsRepository stores the single index_settings row.
type IndexSettingsRepository struct {
	db dbtx
}

func NewIndexSettingsRepository(pool *pgxpool.Pool) *IndexSettingsRepository {
	return &IndexSettingsRepository{db: pool}
}

func NewIndexSettingsRepositoryWithTx(tx pgx.Tx) *IndexSettingsRepository {
	return &IndexSettingsRepository{db: tx}
}

func (r *IndexSettingsRepository) Get(ctx context.Context) (*domain.IndexSettings, error) {
	var s domain.IndexSettings
	err := r.db.QueryRow(ctx,
		`SELECT metric, embedding_model, dimensions, chunk_size, chunk_overlap, created_at
		 FROM index_settings WHERE id = 1`,
	).Scan(&s.Metric, &s.EmbeddingModel, &s.Dimensions, &s.ChunkSize, &s.ChunkOverlap, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *IndexSettingsRepository) Save(ctx context.Context, s domain.IndexSettings) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO index_settings (id, metric, embedding_model, dimensions, chunk_size, chunk_overlap, created_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
			metric = EXCLUDED.metric,
			embedding_model = EXCLUDED.embedding_model,
			dimensions = EXCLUDED.dimensions,
			chunk_size = EXCLUDED.chunk_size,
			chunk_overlap = EXCLUDED.chunk_overlap,
			created_at = EXCLUDED.created_at`,
		s.Metric, s.EmbeddingModel, s.Dimensions, s.ChunkSize, s.ChunkOverlap, s.CreatedAt,
	)
	return err
}
