package middleware

import (
	"log/slog"
	"net/http"

	"github.com/civitas/user-service/pkg/logger"
)

// RequestLogger stores a logger enriched with the request's correlation,
// subject and trace fields in the context. Mount it after RequestLogging,
// Tracing and Auth so those fields exist.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if subject := SubjectFromContext(ctx); subject != "" {
				ctx = logger.WithUserID(ctx, subject)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
