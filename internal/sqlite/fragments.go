package sqlite

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/lexis/internal/domain"
)

type fragmentIndex struct {
	db dbtx
}

func (r *fragmentIndex) Upsert(ctx context.Context, fragments []domain.Fragment) error {
	for _, f := range fragments {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO fragments (id, document_id, sequence_index, content, start_offset, end_offset, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				document_id = excluded.document_id,
				sequence_index = excluded.sequence_index,
				content = excluded.content,
				start_offset = excluded.start_offset,
				end_offset = excluded.end_offset,
				embedding = excluded.embedding,
				created_at = excluded.created_at
		`, f.ID, f.DocumentID, f.SequenceIndex, f.Content, f.StartOffset, f.EndOffset,
			float32SliceToBytes(f.Embedding), f.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("upsert fragment %s: %w", f.ID, err)
		}
	}
	return nil
}

func (r *fragmentIndex) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fragments WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting fragments: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Search scores every stored fragment against query and keeps the best k.
func (r *fragmentIndex) Search(ctx context.Context, query []float32, k int) ([]domain.ScoredFragment, error) {
	if k <= 0 {
		return nil, nil
	}

	frags, err := r.all(ctx, `SELECT id, document_id, sequence_index, content, start_offset, end_offset, embedding, created_at FROM fragments`)
	if err != nil {
		return nil, err
	}

	results := make([]domain.ScoredFragment, 0, len(frags))
	for _, f := range frags {
		score := domain.CosineSimilarity(query, f.Embedding)
		f.Embedding = nil
		results = append(results, domain.ScoredFragment{Fragment: f, Score: score})
	}
	domain.SortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// GetByDocument returns a document's fragments in sequence order, embeddings included.
func (r *fragmentIndex) GetByDocument(ctx context.Context, documentID string) ([]domain.Fragment, error) {
	return r.all(ctx, `
		SELECT id, document_id, sequence_index, content, start_offset, end_offset, embedding, created_at
		FROM fragments WHERE document_id = ? ORDER BY sequence_index`, documentID)
}

func (r *fragmentIndex) all(ctx context.Context, query string, args ...any) ([]domain.Fragment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying fragments: %w", err)
	}
	defer rows.Close()

	var frags []domain.Fragment
	for rows.Next() {
		var f domain.Fragment
		var blob []byte
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.SequenceIndex, &f.Content, &f.StartOffset, &f.EndOffset, &blob, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning fragment: %w", err)
		}
		f.Embedding = bytesToFloat32Slice(blob)
		frags = append(frags, f)
	}
	return frags, rows.Err()
}

func (r *fragmentIndex) FragmentIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM fragments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying fragment ids: %w", err)
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

func (r *fragmentIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fragments`).Scan(&n)
	return n, err
}

func (r *fragmentIndex) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM fragments`)
	return err
}
