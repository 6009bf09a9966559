package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "req-123", seen)
}

func TestRequestID_ReplacesUnsafeIDs(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	for _, bad := range []string{"has space", "tab\tinside", strings.Repeat("x", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, bad)
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.NotEqual(t, bad, seen)
		assert.Len(t, seen, 36)
	}
}

func TestMaxBodyBytes_RejectsLargeBodies(t *testing.T) {
	h := MaxBodyBytes(BodyLimits{JSON: 4, Upload: 64})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "exceeds 4 bytes")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMaxBodyBytes_UploadsUseTheirOwnLimit(t *testing.T) {
	h := MaxBodyBytes(BodyLimits{JSON: 4, Upload: 64})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	upload := func(body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
		return req
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, upload(strings.Repeat("a", 32)))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, upload(strings.Repeat("a", 65)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	chunked := upload(strings.Repeat("a", 65))
	chunked.ContentLength = -1
	w = httptest.NewRecorder()
	h.ServeHTTP(w, chunked)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAccessLog_WritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := RequestID(AccessLog(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/documents/x", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "/documents/x", fields["path"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
	assert.EqualValues(t, 7, fields["bytes"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestRecorders_Flush(t *testing.T) {
	var flushed bool
	h := SentryMiddleware(AccessLog(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		_, _ = w.Write([]byte("event: token\n\n"))
		f.Flush()
		flushed = true
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/conversations/c1/messages", nil))
	assert.True(t, flushed)
	assert.True(t, w.Flushed)
}

func TestSentryMiddleware_NamesTransactionAfterRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(SentryMiddleware)
	var name string
	r.Get("/documents/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/names", func(w http.ResponseWriter, req *http.Request) {
		name = routeName(req)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/contract.pdf", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/names", nil))
	assert.Equal(t, "GET /names", name)

	assert.Equal(t, "GET /raw", routeName(httptest.NewRequest(http.MethodGet, "/raw", nil)))
}

func TestSpanStatusForHTTP(t *testing.T) {
	assert.Equal(t, sentry.SpanStatusOK, spanStatusForHTTP(http.StatusCreated))
	assert.Equal(t, sentry.SpanStatusNotFound, spanStatusForHTTP(http.StatusNotFound))
	assert.Equal(t, sentry.SpanStatusResourceExhausted, spanStatusForHTTP(http.StatusRequestEntityTooLarge))
	assert.Equal(t, sentry.SpanStatusInvalidArgument, spanStatusForHTTP(http.StatusTeapot))
	assert.Equal(t, sentry.SpanStatusUnavailable, spanStatusForHTTP(http.StatusServiceUnavailable))
	assert.Equal(t, sentry.SpanStatusInternalError, spanStatusForHTTP(http.StatusInternalServerError))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:4321"
	assert.Equal(t, "192.168.1.5", clientIP(req))
}
