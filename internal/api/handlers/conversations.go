package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-contrib/sse"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cloo-solutions/lexis/internal/api"
	"github.com/cloo-solutions/lexis/internal/domain"
	"github.com/cloo-solutions/lexis/internal/service"
)

// SSE event names
const (
	EventToken    = "token"
	EventCitation = "citation"
	EventDone     = "done"
	EventError    = "error"
)

type ConversationService interface {
	Create(ctx context.Context, title string) (*domain.Conversation, error)
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	List(ctx context.Context) ([]*domain.Conversation, error)
	Delete(ctx context.Context, id string) error
	Messages(ctx context.Context, id string) ([]*domain.Message, error)
}

type Answerer interface {
	Answer(ctx context.Context, input service.AnswerInput) (*service.AnswerStream, error)
}

type ConversationHandler struct {
	convs  ConversationService
	chat   Answerer
	logger *zap.Logger
}

func NewConversationHandler(convs ConversationService, chat Answerer) *ConversationHandler {
	return &ConversationHandler{
		convs:  convs,
		chat:   chat,
		logger: zap.L().With(zap.String("handler", "conversation")),
	}
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type AskRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type TokenEvent struct {
	Token string `json:"token"`
}

type DoneEvent struct {
	ConversationID string           `json:"conversation_id"`
	Message        *MessageResponse `json:"message"`
	Sources        []SourceResponse `json:"sources"`
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			api.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	conv, err := h.convs.Create(r.Context(), req.Title)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, conversationToResponse(conv))
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.convs.List(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*ConversationResponse, 0, len(convs))
	for _, c := range convs {
		resp = append(resp, conversationToResponse(c))
	}
	api.Success(w, http.StatusOK, resp)
}

// Get returns the conversation with its full history.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conv, err := h.convs.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	msgs, err := h.convs.Messages(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := conversationToResponse(conv)
	resp.Messages = make([]*MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, messageToResponse(m))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.convs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ask answers a question as a Server-Sent Events stream of token, citation
// and done events. Errors before the first event are plain JSON responses;
// later ones arrive as an error event. A client disconnect stops generation
// and keeps the partial answer as interrupted.
func (h *ConversationHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	stream, err := h.chat.Answer(r.Context(), service.AnswerInput{
		ConversationID: chi.URLParam(r, "id"),
		Query:          req.Query,
		K:              req.K,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}
	defer stream.Close()

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(event string, data interface{}) bool {
		if err := sse.Encode(w, sse.Event{Event: event, Data: data}); err != nil {
			h.logger.Debug("client gone", zap.Error(err))
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if r.Context().Err() == nil {
				send(EventError, api.ErrorBody(err))
			}
			return
		}

		var ok bool
		switch ev.Type {
		case service.EventToken:
			ok = send(EventToken, TokenEvent{Token: ev.Token})
		case service.EventCitation:
			ok = send(EventCitation, *citationToResponse(ev.Citation))
		case service.EventDone:
			ok = send(EventDone, DoneEvent{
				ConversationID: stream.Conversation.ID,
				Message:        messageToResponse(ev.Message),
				Sources:        sourcesToResponse(stream.Sources()),
			})
		}
		if !ok {
			return
		}
	}
}
