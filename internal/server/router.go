package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cloo-solutions/lexis/internal/api/handlers"
	"github.com/cloo-solutions/lexis/internal/api/middleware"
)

// DefaultMaxBodyBytes bounds upload bodies when RouterConfig leaves it unset.
const DefaultMaxBodyBytes int64 = 32 << 20

type RouterConfig struct {
	HealthHandler       *handlers.HealthHandler
	DocumentHandler     *handlers.DocumentHandler
	SearchHandler       *handlers.SearchHandler
	ConversationHandler *handlers.ConversationHandler
	Logger              *zap.Logger
	MaxBodyBytes        int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	logger := cfg.Logger
	if logger == nil {
		logger = zap.L()
	}
	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(logger.With(zap.String("component", "http"))))
	r.Use(middleware.MaxBodyBytes(middleware.BodyLimits{
		JSON:   middleware.DefaultJSONBodyBytes,
		Upload: maxBodyBytes,
	}))

	r.Get("/health", cfg.HealthHandler.Health)

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", cfg.DocumentHandler.Upload)
		r.Get("/", cfg.DocumentHandler.List)
		r.Post("/reindex", cfg.DocumentHandler.Reindex)
		r.Get("/{id}", cfg.DocumentHandler.Get)
		r.Delete("/{id}", cfg.DocumentHandler.Delete)
	})

	r.Post("/search", cfg.SearchHandler.Search)

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", cfg.ConversationHandler.Create)
		r.Get("/", cfg.ConversationHandler.List)
		r.Get("/{id}", cfg.ConversationHandler.Get)
		r.Delete("/{id}", cfg.ConversationHandler.Delete)
		r.Post("/{id}/messages", cfg.ConversationHandler.Ask)
	})

	return r
}
