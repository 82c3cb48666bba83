package http

import (
	"net/http"
	"strings"

	apperrors "github.com/civitas/user-service/pkg/errors"
	"github.com/civitas/user-service/pkg/httputil"
)

// ContentTypeJSON rejects write requests that declare a Content-Type other
// than application/json with a 415 envelope. A missing header passes.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, &apperrors.ModelError{
					Name:    "UnsupportedMediaType",
					Code:    "UNSUPPORTED_MEDIA_TYPE",
					Message: "Content-Type must be application/json.",
					Results: apperrors.Results{Errors: []apperrors.Issue{}},
					Status:  http.StatusUnsupportedMediaType,
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
