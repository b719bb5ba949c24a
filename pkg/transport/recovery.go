package transport

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/tenantgate/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to a 500 response. The server continues to accept new
// requests after a panic is recovered.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					logger.Error("handler panicked",
						"request_id", RequestIDFromContext(r.Context()),
						"path", r.URL.Path,
						"panic", fmt.Sprint(p),
					)
					WriteErrorResponse(w, api.NewServerError(), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
