package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/civitas/user-service/pkg/errors"
	"github.com/civitas/user-service/pkg/logger"
	"github.com/civitas/user-service/pkg/validator"
)

// CodeMalformedBody is the issue code reported when a request body cannot be
// decoded at all.
const CodeMalformedBody = 100000

// Response is the JSON envelope for successful responses.
type Response struct {
	Data any `json:"data"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError converts err into the client error envelope and writes it with
// the envelope's status. Server errors are logged with the request-scoped
// logger when the RequestLogger middleware is mounted, otherwise with fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	envelope := apperrors.AsModelError(err)

	if envelope.Status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, envelope.Status, envelope)
}

// WriteValidationError writes a 400 ValidationError envelope. Field errors
// from the validator package become one issue each; any other error (for
// example a JSON syntax error) becomes a single malformed-body issue.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, apperrors.ValidationFailed(valErr.Issues()))
		return
	}

	WriteJSON(w, http.StatusBadRequest, apperrors.ValidationFailed([]apperrors.Issue{{
		Code:    CodeMalformedBody,
		Message: "Request body could not be parsed: " + err.Error(),
		Path:    []string{},
	}}))
}
