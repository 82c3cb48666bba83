package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	apperrors "github.com/civitas/user-service/pkg/errors"
	"github.com/civitas/user-service/pkg/httputil"
)

// Recovery turns a panic into a logged ServerError envelope.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				l.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				env := apperrors.ServerError(fmt.Errorf("panic: %v", rec))
				httputil.WriteJSON(w, env.Status, env)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
