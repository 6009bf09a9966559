package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/lexis/internal/domain"
)

const messageColumns = `id, conversation_id, seq, role, content, cited_fragment_ids, status, created_at`

type conversationRepo struct {
	db dbtx
}

func (r *conversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Title, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

func (r *conversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	return &c, nil
}

func (r *conversationRepo) List(ctx context.Context) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, &c)
	}
	return convs, rows.Err()
}

func (r *conversationRepo) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	return requireRow(res, domain.ErrConversationNotFound)
}

func (r *conversationRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return requireRow(res, domain.ErrConversationNotFound)
}

// Append stores m with the next sequence number of its conversation and
// moves the conversation's updated_at forward.
func (r *conversationRepo) Append(ctx context.Context, m *domain.Message) error {
	conv, err := r.GetByID(ctx, m.ConversationID)
	if err != nil {
		return err
	}

	updated := conv.UpdatedAt
	if m.CreatedAt.After(updated) {
		updated = m.CreatedAt
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, updated.UTC(), m.ConversationID); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	var seq int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?`, m.ConversationID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	cited, err := encodeIDs(m.CitedFragmentIDs)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, seq, string(m.Role), m.Content, cited, string(m.Status), m.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	m.Seq = seq
	return nil
}

func (r *conversationRepo) Messages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	return r.messages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY seq`, conversationID)
}

func (r *conversationRepo) Recent(ctx context.Context, conversationID string, n int) ([]*domain.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	return r.messages(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq`, conversationID, n)
}

func (r *conversationRepo) messages(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		var m domain.Message
		var role, status, cited string
		var created time.Time
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &role, &m.Content, &cited, &status, &created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = domain.Role(role)
		m.Status = domain.MessageStatus(status)
		m.CreatedAt = created
		if m.CitedFragmentIDs, err = decodeIDs(cited); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
