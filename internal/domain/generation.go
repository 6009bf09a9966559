package domain

// PromptMessage is one turn handed to the generation provider.
type PromptMessage struct {
	Role    Role
	Content string
}

// Prompt is the structured input of a generation call: system instructions with
// the grounded context, followed by recent conversation turns and the question.
type Prompt struct {
	System   string
	Messages []PromptMessage
}

// TokenStream is a finite, non-restartable sequence of generated text.
// Recv returns io.EOF once the provider finishes. Close stops consumption and
// releases the underlying connection; it is safe to call more than once.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}
