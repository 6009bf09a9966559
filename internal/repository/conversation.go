package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/lexis/internal/domain"
)

const messageColumns = `id, conversation_id, seq, role, content, cited_fragment_ids, status, created_at`

// ConversationRepository persists conversations and their messages.
type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func NewConversationRepositoryWithTx(tx pgx.Tx) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

func (r *ConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Title, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) List(ctx context.Context) ([]*domain.Conversation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, &c)
	}
	return results, rows.Err()
}

func (r *ConversationRepository) UpdateTitle(ctx context.Context, id, title string) error {
	tag, err := r.db.Exec(ctx, `UPDATE conversations SET title = $2 WHERE id = $1`, id, title)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// Append inserts m with the next sequence number of its conversation and
// moves the conversation's updated_at forward.
func (r *ConversationRepository) Append(ctx context.Context, m *domain.Message) error {
	err := r.db.QueryRow(ctx,
		`WITH conv AS (
			UPDATE conversations SET updated_at = GREATEST(updated_at, $7)
			WHERE id = $2
			RETURNING id
		)
		INSERT INTO messages (`+messageColumns+`)
		SELECT $1, conv.id,
			COALESCE((SELECT MAX(seq) FROM messages WHERE conversation_id = $2), 0) + 1,
			$3, $4, $5, $6, $7
		FROM conv
		RETURNING seq`,
		m.ID, m.ConversationID, m.Role, m.Content, nonNilStrings(m.CitedFragmentIDs), m.Status, m.CreatedAt,
	).Scan(&m.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrConversationNotFound
	}
	return err
}

func (r *ConversationRepository) Messages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 ORDER BY seq`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

func (r *ConversationRepository) Recent(ctx context.Context, conversationID string, n int) ([]*domain.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent ORDER BY seq`,
		conversationID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

func scanMessageRows(rows pgx.Rows) ([]*domain.Message, error) {
	var results []*domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.Role, &m.Content, &m.CitedFragmentIDs, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(m.CitedFragmentIDs) == 0 {
			m.CitedFragmentIDs = nil
		}
		results = append(results, &m)
	}
	return results, rows.Err()
}
