package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/lexis/internal/domain"
)

// ConversationService manages conversations and their append-only history.
type ConversationService struct {
	store  Store
	ids    IDGenerator
	now    func() time.Time
	locks  *keyedMutex
	logger *zap.Logger
}

// NewConversationService creates a new ConversationService instance
func NewConversationService(store Store) *ConversationService {
	return &ConversationService{
		store:  store,
		ids:    randomIDs{},
		now:    time.Now,
		locks:  newKeyedMutex(),
		logger: zap.L().With(zap.String("service", "conversation")),
	}
}

// NewConversationServiceWithIDs uses ids in place of random UUIDs
func NewConversationServiceWithIDs(store Store, ids IDGenerator) *ConversationService {
	s := NewConversationService(store)
	s.ids = ids
	return s
}

// Create starts a conversation. An empty title is replaced by the first
// user message once one is appended.
func (s *ConversationService) Create(ctx context.Context, title string) (*domain.Conversation, error) {
	title = strings.TrimSpace(title)
	if title != "" {
		title = domain.TitleFromMessage(title)
	}
	c := domain.NewConversation(s.ids.NewString(), title, s.now().UTC())
	if err := s.store.Conversations().Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	return s.store.Conversations().GetByID(ctx, id)
}

// List returns conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context) ([]*domain.Conversation, error) {
	return s.store.Conversations().List(ctx)
}

// Delete removes a conversation and its messages.
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	if err := s.store.Conversations().Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("conversation deleted", zap.String("conversation_id", id))
	return nil
}

// Messages returns the full history in sequence order.
func (s *ConversationService) Messages(ctx context.Context, id string) ([]*domain.Message, error) {
	if _, err := s.store.Conversations().GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Conversations().Messages(ctx, id)
}

// Recent returns the last n messages in sequence order.
func (s *ConversationService) Recent(ctx context.Context, id string, n int) ([]*domain.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.store.Conversations().Recent(ctx, id, n)
}

// Append adds a message at the end of the conversation. The first user
// message of an untitled conversation becomes its title.
func (s *ConversationService) Append(
	ctx context.Context,
	conv *domain.Conversation,
	role domain.Role,
	content string,
	cited []string,
	status domain.MessageStatus,
) (*domain.Message, error) {
	m := domain.NewMessage(s.ids.NewString(), conv.ID, role, content, cited, status, s.now().UTC())
	if err := domain.ValidateMessage(m); err != nil {
		return nil, domain.ErrMissingRequiredField.Wrap(err)
	}

	unlock := s.locks.Lock(conv.ID)
	defer unlock()

	err := s.store.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Conversations().Append(ctx, m); err != nil {
			return err
		}
		if role == domain.RoleUser && conv.Title == domain.DefaultConversationTitle {
			title := domain.TitleFromMessage(content)
			if err := repos.Conversations().UpdateTitle(ctx, conv.ID, title); err != nil {
				return err
			}
			conv.Title = title
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	conv.UpdatedAt = m.CreatedAt
	return m, nil
}
