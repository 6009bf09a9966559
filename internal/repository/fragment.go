package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/lexis/internal/domain"
)

// FragmentRepository is the pgvector-backed vector index.
type FragmentRepository struct {
	db dbtx
}

func NewFragmentRepository(pool *pgxpool.Pool) *FragmentRepository {
	return &FragmentRepository{db: pool}
}

func NewFragmentRepositoryWithTx(tx pgx.Tx) *FragmentRepository {
	return &FragmentRepository{db: tx}
}

// Upsert inserts or replaces fragments by ID in one batch.
func (r *FragmentRepository) Upsert(ctx context.Context, fragments []domain.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, f := range fragments {
		batch.Queue(
			`INSERT INTO fragments (id, document_id, sequence_index, content, start_offset, end_offset, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				sequence_index = EXCLUDED.sequence_index,
				content = EXCLUDED.content,
				start_offset = EXCLUDED.start_offset,
				end_offset = EXCLUDED.end_offset,
				embedding = EXCLUDED.embedding,
				created_at = EXCLUDED.created_at`,
			f.ID, f.DocumentID, f.SequenceIndex, f.Content, f.StartOffset, f.EndOffset,
			pgvector.NewVector(f.Embedding), f.CreatedAt,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	for i := range fragments {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert fragment %s: %w", fragments[i].ID, err)
		}
	}
	return br.Close()
}

func (r *FragmentRepository) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM fragments WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Search ranks every fragment by cosine similarity. Ties fall back to
// sequence index, document ID and fragment ID so results are reproducible.
// pgvector yields NaN against a zero vector; those rows score 0, matching
// domain.CosineSimilarity.
func (r *FragmentRepository) Search(ctx context.Context, query []float32, k int) ([]domain.ScoredFragment, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, sequence_index, content, start_offset, end_offset, created_at,
				COALESCE(NULLIF(1 - (embedding <=> $1), 'NaN'::float8), 0)::real AS score
		 FROM fragments
		 ORDER BY score DESC, sequence_index ASC, document_id ASC, id ASC
		 LIMIT $2`,
		pgvector.NewVector(query), k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ScoredFragment
	for rows.Next() {
		var sf domain.ScoredFragment
		f := &sf.Fragment
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.SequenceIndex, &f.Content, &f.StartOffset, &f.EndOffset, &f.CreatedAt, &sf.Score); err != nil {
			return nil, err
		}
		results = append(results, sf)
	}
	return results, rows.Err()
}

// GetByDocument returns a document's fragments in sequence order, embeddings included.
func (r *FragmentRepository) GetByDocument(ctx context.Context, documentID string) ([]domain.Fragment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, sequence_index, content, start_offset, end_offset, embedding, created_at
		 FROM fragments WHERE document_id = $1 ORDER BY sequence_index`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Fragment
	for rows.Next() {
		var f domain.Fragment
		var vec pgvector.Vector
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.SequenceIndex, &f.Content, &f.StartOffset, &f.EndOffset, &vec, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Embedding = vec.Slice()
		results = append(results, f)
	}
	return results, rows.Err()
}

func (r *FragmentRepository) FragmentIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM fragments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *FragmentRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM fragments`).Scan(&n)
	return n, err
}

func (r *FragmentRepository) Clear(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `DELETE FROM fragments`)
	return err
}
