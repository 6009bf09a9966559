// Package telemetry wires Sentry tracing and error reporting for lexis.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/cloo-solutions/lexis/internal/domain"
)

const (
	serviceName  = "lexis"
	flushTimeout = 5 * time.Second
	healthSpan   = "GET /health"
)

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init initializes Sentry with tracing enabled and returns a flush function.
// Without a DSN, or when the client cannot start, it returns a no-op.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		TracesSampler:    sampler(cfg.TracesSampleRate),
		BeforeSend:       dropExpected,
		Debug:            cfg.Debug,
		ServerName:       serviceName,
	})
	if err != nil {
		zap.L().Warn("sentry: failed to initialize, continuing without tracing", zap.Error(err))
		return func() {}, nil
	}

	zap.L().Info("sentry: tracing initialized",
		zap.String("environment", cfg.Environment),
		zap.Float64("sample_rate", cfg.TracesSampleRate))
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampler never traces health checks and keeps child spans with their parent.
func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if ctx.Span == nil {
			return rate
		}
		if ctx.Span.Name == healthSpan {
			return 0
		}
		var root sentry.SpanID
		if ctx.Span.ParentSpanID != root {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

// dropExpected discards events raised for caller mistakes rather than faults.
func dropExpected(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint != nil && hint.OriginalException != nil && Expected(hint.OriginalException) {
		return nil
	}
	return event
}

// Expected reports whether err is an outcome of bad input: a missing
// resource, a validation failure or a document that cannot be read.
func Expected(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	de, ok := domain.AsDomainError(err)
	if !ok {
		return false
	}
	switch de.Code {
	case domain.ErrCodeValidation, domain.ErrCodeNotFound, domain.ErrCodeUnsupportedFormat, domain.ErrCodeExtractionFailed:
		return true
	}
	return false
}

// SpanStatusFor maps an error to the span status recorded for it.
func SpanStatusFor(err error) sentry.SpanStatus {
	if err == nil {
		return sentry.SpanStatusOK
	}
	if errors.Is(err, context.Canceled) {
		return sentry.SpanStatusCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sentry.SpanStatusDeadlineExceeded
	}
	de, ok := domain.AsDomainError(err)
	if !ok {
		return sentry.SpanStatusInternalError
	}
	switch de.Code {
	case domain.ErrCodeValidation, domain.ErrCodeUnsupportedFormat, domain.ErrCodeExtractionFailed:
		return sentry.SpanStatusInvalidArgument
	case domain.ErrCodeNotFound:
		return sentry.SpanStatusNotFound
	case domain.ErrCodeSettingsMismatch:
		return sentry.SpanStatusFailedPrecondition
	case domain.ErrCodeEmbeddingUnavailable, domain.ErrCodeGenerationUnavailable:
		return sentry.SpanStatusUnavailable
	case domain.ErrCodeGenerationInterrupted:
		return sentry.SpanStatusAborted
	}
	return sentry.SpanStatusInternalError
}

// SpanAttributes are the tags and data recorded on pipeline spans.
type SpanAttributes struct {
	DocumentID     string
	ConversationID string
	Operation      string
	// Count is recorded when positive: files in a batch, K for a search.
	Count int
}

func (a SpanAttributes) apply(span *sentry.Span) {
	if a.DocumentID != "" {
		span.SetTag("document_id", a.DocumentID)
	}
	if a.ConversationID != "" {
		span.SetTag("conversation_id", a.ConversationID)
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
	if a.Count > 0 {
		span.SetData("count", a.Count)
	}
}

// Span is a nil-safe handle on a Sentry span.
type Span struct {
	inner *sentry.Span
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetError records the status for err and reports it unless it is expected.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = SpanStatusFor(err)
	if Expected(err) {
		return
	}
	if hub := sentry.GetHubFromContext(s.inner.Context()); hub != nil {
		hub.CaptureException(err)
	}
}

// StartSpan starts a child of the span in ctx, or a new transaction when
// ctx carries none, as happens for CLI and inbox work.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

// AddBreadcrumb records a pipeline step on the current scope.
func AddBreadcrumb(ctx context.Context, category, message string) {
	breadcrumb := &sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(breadcrumb, nil)
		return
	}
	sentry.AddBreadcrumb(breadcrumb)
}
