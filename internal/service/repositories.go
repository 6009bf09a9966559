package service

import (
	"context"

	"github.com/cloo-solutions/lexis/internal/domain"
)

// DocumentRepository persists the document catalog.
type DocumentRepository interface {
	Upsert(ctx context.Context, d *domain.Document) error
	// GetByID returns domain.ErrDocumentNotFound when no document has the id.
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// GetBySHA256 returns domain.ErrDocumentNotFound when no document has the hash.
	GetBySHA256(ctx context.Context, sha256 string) (*domain.Document, error)
	List(ctx context.Context) ([]*domain.Document, error)
	// Delete reports whether a document was removed.
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// FragmentIndex is the vector index. Entries are only ever removed per document.
type FragmentIndex interface {
	// Upsert inserts or replaces entries by fragment ID.
	Upsert(ctx context.Context, fragments []domain.Fragment) error
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	// Search returns at most k entries ordered by domain.SortResults.
	Search(ctx context.Context, query []float32, k int) ([]domain.ScoredFragment, error)
	FragmentIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// ConversationRepository persists append-only conversations.
type ConversationRepository interface {
	Create(ctx context.Context, c *domain.Conversation) error
	// GetByID returns domain.ErrConversationNotFound when missing.
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	// List orders conversations by most recent activity first.
	List(ctx context.Context) ([]*domain.Conversation, error)
	UpdateTitle(ctx context.Context, id, title string) error
	// Delete returns domain.ErrConversationNotFound when missing.
	Delete(ctx context.Context, id string) error
	// Append assigns m.Seq and bumps the conversation's UpdatedAt.
	Append(ctx context.Context, m *domain.Message) error
	Messages(ctx context.Context, conversationID string) ([]*domain.Message, error)
	// Recent returns the last n messages in ascending sequence order.
	Recent(ctx context.Context, conversationID string, n int) ([]*domain.Message, error)
}

// IndexSettingsRepository stores the settings the index was built with.
type IndexSettingsRepository interface {
	// Get returns nil when the index has not been created yet.
	Get(ctx context.Context) (*domain.IndexSettings, error)
	Save(ctx context.Context, s domain.IndexSettings) error
}

// BlobStore keeps the raw bytes of ingested documents.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns domain.ErrBlobNotFound when the key is missing.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error
}

// Embedder turns texts into vectors of a fixed size, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}

// Generator streams a completion for a prompt.
type Generator interface {
	Stream(ctx context.Context, prompt domain.Prompt) (domain.TokenStream, error)
}

// TextExtractor converts raw document bytes to text for a format.
type TextExtractor interface {
	Extract(content []byte, format domain.Format) (string, error)
}
