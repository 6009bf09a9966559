package domain

import (
	"fmt"
	"strings"
	"time"
)

// TitleLength is the maximum number of characters taken from the first user message.
const TitleLength = 50

// DefaultConversationTitle is used until the first user message arrives.
const DefaultConversationTitle = "New conversation"

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus records how an assistant message ended
type MessageStatus string

const (
	MessageStatusComplete    MessageStatus = "complete"
	MessageStatusInterrupted MessageStatus = "interrupted"
	MessageStatusNoGrounding MessageStatus = "no_grounding"
)

// Conversation is an append-only sequence of messages.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single turn in a conversation.
type Message struct {
	ID               string
	ConversationID   string
	Seq              int
	Role             Role
	Content          string
	CitedFragmentIDs []string
	Status           MessageStatus
	CreatedAt        time.Time
}

// NewConversation creates a new Conversation instance
func NewConversation(id, title string, now time.Time) *Conversation {
	if title == "" {
		title = DefaultConversationTitle
	}
	return &Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewMessage creates a new Message instance. Seq is assigned by the store.
func NewMessage(id, conversationID string, role Role, content string, cited []string, status MessageStatus, createdAt time.Time) *Message {
	return &Message{
		ID:               id,
		ConversationID:   conversationID,
		Role:             role,
		Content:          content,
		CitedFragmentIDs: cited,
		Status:           status,
		CreatedAt:        createdAt,
	}
}

// ValidateMessage validates a Message instance
func ValidateMessage(m *Message) error {
	if m == nil {
		return fmt.Errorf("message cannot be nil")
	}

	if m.ID == "" {
		return fmt.Errorf("message ID is required")
	}

	if m.ConversationID == "" {
		return fmt.Errorf("message ConversationID is required")
	}

	if !isValidRole(m.Role) {
		return fmt.Errorf("message Role is invalid: %s", m.Role)
	}

	if !isValidMessageStatus(m.Status) {
		return fmt.Errorf("message Status is invalid: %s", m.Status)
	}

	if m.Role == RoleUser && len(m.CitedFragmentIDs) > 0 {
		return fmt.Errorf("user messages cannot cite fragments")
	}

	return nil
}

// TitleFromMessage builds a conversation title from the first user message.
func TitleFromMessage(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if content == "" {
		return DefaultConversationTitle
	}
	if len([]rune(content)) <= TitleLength {
		return content
	}
	return Truncate(content, TitleLength) + "..."
}

func isValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	}
	return false
}

func isValidMessageStatus(s MessageStatus) bool {
	switch s {
	case MessageStatusComplete, MessageStatusInterrupted, MessageStatusNoGrounding:
		return true
	}
	return false
}
