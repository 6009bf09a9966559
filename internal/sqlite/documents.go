package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloo-solutions/lexis/internal/domain"
)

const documentColumns = `id, file_name, format, size_bytes, sha256, storage_key, fragment_ids, ingested_at`

type documentRepo struct {
	db dbtx
}

func (r *documentRepo) Upsert(ctx context.Context, d *domain.Document) error {
	ids, err := encodeIDs(d.FragmentIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			format = excluded.format,
			size_bytes = excluded.size_bytes,
			sha256 = excluded.sha256,
			storage_key = excluded.storage_key,
			fragment_ids = excluded.fragment_ids,
			ingested_at = excluded.ingested_at
	`, d.ID, d.FileName, string(d.Format), d.SizeBytes, d.SHA256, d.StorageKey, ids, d.IngestedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

func (r *documentRepo) GetBySHA256(ctx context.Context, sha256 string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE sha256 = ? ORDER BY id LIMIT 1`, sha256)
	return scanDocument(row)
}

func (r *documentRepo) List(ctx context.Context) ([]*domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *documentRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *documentRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var d domain.Document
	var format, ids string
	err := row.Scan(&d.ID, &d.FileName, &format, &d.SizeBytes, &d.SHA256, &d.StorageKey, &ids, &d.IngestedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	d.Format = domain.Format(format)
	if d.FragmentIDs, err = decodeIDs(ids); err != nil {
		return nil, err
	}
	return &d, nil
}
