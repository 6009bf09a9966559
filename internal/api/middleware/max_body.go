package middleware

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/cloo-solutions/lexis/internal/api"
)

// DefaultJSONBodyBytes caps non-upload request bodies.
const DefaultJSONBodyBytes int64 = 1 << 20

// BodyLimits bounds request bodies by kind. Multipart uploads carry whole
// documents and get their own, larger budget. A zero limit disables the cap.
type BodyLimits struct {
	JSON   int64
	Upload int64
}

func (l BodyLimits) forRequest(r *http.Request) int64 {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && mediaType == "multipart/form-data" {
		return l.Upload
	}
	return l.JSON
}

// MaxBodyBytes rejects bodies over the limit for their kind. Declared
// lengths are refused up front; chunked bodies are cut off while reading.
func MaxBodyBytes(limits BodyLimits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit := limits.forRequest(r)
			if limit <= 0 || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
