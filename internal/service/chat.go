package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/lexis/internal/domain"
	"github.com/cloo-solutions/lexis/internal/telemetry"
)

const (
	// DefaultTopK is the number of fragments retrieved per question.
	DefaultTopK = 4
	// DefaultHistoryTurns is the number of earlier messages sent with a question.
	DefaultHistoryTurns = 10
	// NoGroundingMessage is the fixed answer when retrieval finds nothing.
	NoGroundingMessage = "I could not find any information about this in the available documents."

	fragmentSeparator = "\n---\n"
)

const systemInstruction = `You are an assistant that answers questions about a private document collection.
Answer only from the numbered document fragments below. If they do not contain the answer, say that the documents do not cover it.
Cite every statement with the fragment number in square brackets, for example [1] or [2].
Answer in the language of the question.`

var citationPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// ChatConfig is the immutable configuration of the answer chain.
type ChatConfig struct {
	TopK              int
	HistoryTurns      int
	GenerationTimeout time.Duration
}

// AnswerInput is a question asked inside a conversation. An empty
// ConversationID starts a new conversation; K <= 0 uses the configured TopK.
type AnswerInput struct {
	ConversationID string
	Query          string
	K              int
}

// Source summarizes one retrieved document.
type Source struct {
	DocumentID string
	Score      float32
	Fragments  int
	Preview    string
}

// ChatService retrieves fragments for a question and streams a cited answer.
type ChatService struct {
	store         Store
	embedder      Embedder
	generator     Generator
	conversations *ConversationService
	cfg           ChatConfig
	logger        *zap.Logger
}

// NewChatService creates a new ChatService instance
func NewChatService(store Store, embedder Embedder, generator Generator, conversations *ConversationService, cfg ChatConfig) *ChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 0
	}
	return &ChatService{
		store:         store,
		embedder:      embedder,
		generator:     generator,
		conversations: conversations,
		cfg:           cfg,
		logger:        zap.L().With(zap.String("service", "chat")),
	}
}

// Search embeds the query and returns the k nearest fragments. A query that
// embeds to the zero vector matches nothing.
func (s *ChatService) Search(ctx context.Context, query string, k int) ([]domain.ScoredFragment, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if k <= 0 {
		k = s.cfg.TopK
	}

	ctx, span := telemetry.StartSpan(ctx, "ChatService.Search", telemetry.SpanAttributes{
		Operation: "search",
		Count:     k,
	})
	defer span.End()

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		span.SetError(err)
		if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
			err = domain.ErrEmbeddingUnavailable.Wrap(err)
		}
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, domain.ErrEmbeddingUnavailable.Wrap(fmt.Errorf("expected 1 vector, got %d", len(vectors)))
	}

	if domain.IsZeroVector(vectors[0]) {
		s.logger.Debug("query has no embeddable content", zap.String("query", domain.Truncate(query, 80)))
		return nil, nil
	}

	results, err := s.store.Fragments().Search(ctx, vectors[0], k)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return results, nil
}

// Answer retrieves grounding for the query and opens a stream of answer
// events. The user message is stored once the generation stream is open and
// before any token is read, so a provider that cannot be reached leaves the
// conversation untouched. The assistant message is stored when the stream
// finishes or is closed early.
func (s *ChatService) Answer(ctx context.Context, input AnswerInput) (*AnswerStream, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	ctx, span := telemetry.StartSpan(ctx, "ChatService.Answer", telemetry.SpanAttributes{
		ConversationID: input.ConversationID,
		Operation:      "answer",
	})
	defer span.End()

	var conv *domain.Conversation
	if input.ConversationID != "" {
		c, err := s.conversations.Get(ctx, input.ConversationID)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		conv = c
	}

	results, err := s.Search(ctx, query, input.K)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	var history []*domain.Message
	if conv != nil {
		if history, err = s.conversations.Recent(ctx, conv.ID, s.cfg.HistoryTurns); err != nil {
			span.SetError(err)
			return nil, err
		}
	}

	var tokens domain.TokenStream
	genCtx, cancel := ctx, context.CancelFunc(func() {})
	if len(results) > 0 {
		if s.cfg.GenerationTimeout > 0 {
			genCtx, cancel = context.WithTimeout(ctx, s.cfg.GenerationTimeout)
		}
		tokens, err = s.generator.Stream(genCtx, BuildPrompt(results, history, query))
		if err != nil {
			cancel()
			span.SetError(err)
			if !errors.Is(err, domain.ErrGenerationUnavailable) {
				err = domain.ErrGenerationUnavailable.Wrap(err)
			}
			return nil, err
		}
	}
	abort := func(err error) (*AnswerStream, error) {
		if tokens != nil {
			_ = tokens.Close()
		}
		cancel()
		span.SetError(err)
		return nil, err
	}

	if conv == nil {
		if conv, err = s.conversations.Create(ctx, ""); err != nil {
			return abort(err)
		}
	}
	if _, err := s.conversations.Append(ctx, conv, domain.RoleUser, query, nil, domain.MessageStatusComplete); err != nil {
		return abort(err)
	}

	stream := &AnswerStream{
		Conversation: conv,
		Results:      results,
		ctx:          genCtx,
		cancel:       cancel,
		tokens:       tokens,
		logger:       s.logger.With(zap.String("conversation_id", conv.ID)),
	}
	stream.persist = func(content string, cited []string, status domain.MessageStatus) (*domain.Message, error) {
		return s.conversations.Append(context.WithoutCancel(ctx), conv, domain.RoleAssistant, content, cited, status)
	}

	if tokens == nil {
		s.logger.Info("no grounding for query", zap.String("conversation_id", conv.ID))
		stream.fixed = NoGroundingMessage
	}
	return stream, nil
}

// BuildPrompt assembles the grounded prompt: instructions and numbered
// fragments as the system message, then the recent turns and the question.
func BuildPrompt(results []domain.ScoredFragment, history []*domain.Message, query string) domain.Prompt {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Document %d - Source: %s]\n%s", i+1, r.Fragment.DocumentID, r.Fragment.Content)
	}

	prompt := domain.Prompt{
		System: systemInstruction + "\n\nContext:\n" + strings.Join(parts, fragmentSeparator),
	}
	for _, m := range history {
		if m.Status == domain.MessageStatusNoGrounding || strings.TrimSpace(m.Content) == "" {
			continue
		}
		prompt.Messages = append(prompt.Messages, domain.PromptMessage{Role: m.Role, Content: m.Content})
	}
	prompt.Messages = append(prompt.Messages, domain.PromptMessage{Role: domain.RoleUser, Content: query})
	return prompt
}

// CitedFragments returns the results referenced as [n] in the answer, in
// order of first reference. An answer without valid references cites every
// result.
func CitedFragments(answer string, results []domain.ScoredFragment) []domain.ScoredFragment {
	seen := make(map[int]bool)
	var cited []domain.ScoredFragment
	for _, m := range citationPattern.FindAllStringSubmatch(answer, -1) {
		for _, part := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 || n > len(results) || seen[n] {
				continue
			}
			seen[n] = true
			cited = append(cited, results[n-1])
		}
	}
	if len(cited) == 0 {
		return results
	}
	return cited
}

// Sources lists the distinct documents of a result set in rank order with a
// preview of their best fragment.
func Sources(results []domain.ScoredFragment) []Source {
	index := make(map[string]int)
	var sources []Source
	for _, r := range results {
		if i, ok := index[r.Fragment.DocumentID]; ok {
			sources[i].Fragments++
			continue
		}
		index[r.Fragment.DocumentID] = len(sources)
		sources = append(sources, Source{
			DocumentID: r.Fragment.DocumentID,
			Score:      r.Score,
			Fragments:  1,
			Preview:    r.Fragment.Excerpt(),
		})
	}
	return sources
}

// EventType distinguishes answer stream events.
type EventType string

const (
	EventToken    EventType = "token"
	EventCitation EventType = "citation"
	EventDone     EventType = "done"
)

// Citation identifies a fragment an answer relies on. Index is the [n] number
// used in the prompt.
type Citation struct {
	Index         int
	FragmentID    string
	DocumentID    string
	SequenceIndex int
	Score         float32
	Excerpt       string
}

// AnswerEvent is one step of an answer stream. Token is set for token events,
// Citation for citation events and Message for the final done event.
type AnswerEvent struct {
	Type     EventType
	Token    string
	Citation *Citation
	Message  *domain.Message
}

// AnswerStream is a pull-based, non-restartable answer. Next returns io.EOF
// after the done event. Close may be called at any time and more than once.
type AnswerStream struct {
	Conversation *domain.Conversation
	Results      []domain.ScoredFragment

	ctx     context.Context
	cancel  context.CancelFunc
	tokens  domain.TokenStream
	fixed   string
	persist func(content string, cited []string, status domain.MessageStatus) (*domain.Message, error)
	logger  *zap.Logger

	answer   strings.Builder
	pending  []AnswerEvent
	finished bool
}

// Next returns the next event.
func (s *AnswerStream) Next() (AnswerEvent, error) {
	if len(s.pending) > 0 {
		ev := s.pending[0]
		s.pending = s.pending[1:]
		return ev, nil
	}
	if s.finished {
		return AnswerEvent{}, io.EOF
	}

	if s.tokens == nil {
		s.finished = true
		s.answer.WriteString(s.fixed)
		msg, err := s.persist(s.fixed, nil, domain.MessageStatusNoGrounding)
		if err != nil {
			return AnswerEvent{}, err
		}
		s.pending = append(s.pending, AnswerEvent{Type: EventDone, Message: msg})
		return AnswerEvent{Type: EventToken, Token: s.fixed}, nil
	}

	if err := s.ctx.Err(); err != nil {
		s.interrupt()
		return AnswerEvent{}, stopError(err)
	}

	tok, err := s.tokens.Recv()
	switch {
	case err == nil:
		s.answer.WriteString(tok)
		return AnswerEvent{Type: EventToken, Token: tok}, nil
	case errors.Is(err, io.EOF):
		return s.complete()
	default:
		s.interrupt()
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return AnswerEvent{}, stopError(ctxErr)
		}
		if !errors.Is(err, domain.ErrGenerationInterrupted) {
			err = domain.ErrGenerationInterrupted.Wrap(err)
		}
		s.logger.Warn("generation interrupted", zap.Error(err))
		return AnswerEvent{}, err
	}
}

// stopError keeps caller cancellation as is and reports a generation
// deadline as an interrupted generation.
func stopError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrGenerationInterrupted.Wrap(err)
	}
	return err
}

// Answer returns the text received so far.
func (s *AnswerStream) Answer() string {
	return s.answer.String()
}

// Sources summarizes the retrieved documents.
func (s *AnswerStream) Sources() []Source {
	return Sources(s.Results)
}

// Close stops consumption. Text received before an incomplete stream is
// closed is stored with status interrupted.
func (s *AnswerStream) Close() error {
	if s.finished {
		s.release()
		return nil
	}
	if s.tokens == nil {
		s.finished = true
		return nil
	}
	s.interrupt()
	return nil
}

func (s *AnswerStream) complete() (AnswerEvent, error) {
	s.finished = true
	s.release()

	answer := s.answer.String()
	cited := CitedFragments(answer, s.Results)
	ids := make([]string, len(cited))
	for i, c := range cited {
		ids[i] = c.Fragment.ID
	}

	msg, err := s.persist(answer, ids, domain.MessageStatusComplete)
	if err != nil {
		return AnswerEvent{}, err
	}

	for _, c := range cited {
		s.pending = append(s.pending, AnswerEvent{Type: EventCitation, Citation: s.citation(c)})
	}
	s.pending = append(s.pending, AnswerEvent{Type: EventDone, Message: msg})

	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *AnswerStream) interrupt() {
	s.finished = true
	s.release()

	partial := s.answer.String()
	if strings.TrimSpace(partial) == "" {
		return
	}
	if _, err := s.persist(partial, nil, domain.MessageStatusInterrupted); err != nil {
		s.logger.Error("failed to store interrupted answer", zap.Error(err))
	}
}

func (s *AnswerStream) release() {
	if s.tokens != nil {
		if err := s.tokens.Close(); err != nil {
			s.logger.Debug("closing token stream", zap.Error(err))
		}
	}
	s.cancel()
}

func (s *AnswerStream) citation(r domain.ScoredFragment) *Citation {
	index := 0
	for i, res := range s.Results {
		if res.Fragment.ID == r.Fragment.ID {
			index = i + 1
			break
		}
	}
	return &Citation{
		Index:         index,
		FragmentID:    r.Fragment.ID,
		DocumentID:    r.Fragment.DocumentID,
		SequenceIndex: r.Fragment.SequenceIndex,
		Score:         r.Score,
		Excerpt:       r.Fragment.Excerpt(),
	}
}
