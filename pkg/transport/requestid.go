package transport

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader is the header used to propagate request IDs.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds client-supplied IDs so they cannot bloat logs.
const maxRequestIDLen = 128

// RequestID returns middleware that assigns a unique request ID to each
// request. An incoming X-Request-ID header is reused when present and
// reasonably sized; otherwise a new UUID is generated. The ID is echoed in
// the response header and stored in the context.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(ContextWithRequestID(r.Context(), id)))
		})
	}
}
