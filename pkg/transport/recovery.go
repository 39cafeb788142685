package transport

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/funcrun/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to a 500 error response. The server continues to accept
// new requests after a panic is recovered.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				logger.Error("handler panicked",
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
					"panic", p,
				)
				if !rec.wroteHeader {
					WriteAPIError(w, api.NewServerError(fmt.Sprintf("internal server error: %v", p)))
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
