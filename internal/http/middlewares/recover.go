package middlewares

import (
	"net/http"
	"runtime/debug"

	httperrors "github.com/assessly/authcore/internal/http/errors"
	"github.com/assessly/authcore/internal/observability/logger"
)

// WithRecover convierte panics en 500 JSON en vez de matar la conexión.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						logger.Layer("http"),
						logger.Any("panic", rec),
						logger.String("stack", string(debug.Stack())),
					)
					httperrors.WriteError(w, r, httperrors.ErrInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
