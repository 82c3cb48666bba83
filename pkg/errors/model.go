package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// Envelope names and codes written to clients.
const (
	NameValidationError  = "ValidationError"
	NameResourceNotFound = "ResourceNotFound"
	NameServerError      = "ServerError"

	CodeModelValidationFailed = "MODEL_VALIDATION_FAILED"
	CodeResourceNotFound      = "RESOURCE_NOT_FOUND"
	CodeInternalServerError   = "INTERNAL_SERVER_ERROR"
)

// Issue is one failed rule: a numeric code, a human message and the path of
// the offending field.
type Issue struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Path    []string `json:"path"`
}

// Results groups the issues carried by a ModelError.
type Results struct {
	Errors []Issue `json:"errors"`
}

// ModelError is the error envelope returned to clients for validation,
// not-found and server failures:
//
//	{"name": "...", "code": "...", "message": "...", "results": {"errors": [...]}, "status": 400}
type ModelError struct {
	Name    string  `json:"name"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Results Results `json:"results"`
	Status  int     `json:"status"`
	Err     error   `json:"-"`
}

func (e *ModelError) Error() string {
	codes := make([]string, 0, len(e.Results.Errors))
	for _, issue := range e.Results.Errors {
		codes = append(codes, fmt.Sprintf("%d", issue.Code))
	}
	if len(codes) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s [%s]", e.Code, e.Message, strings.Join(codes, ","))
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Issues returns the issues carried by the envelope.
func (e *ModelError) Issues() []Issue {
	return e.Results.Errors
}

// ValidationFailed creates a 400 envelope listing every issue found.
func ValidationFailed(issues []Issue) *ModelError {
	return &ModelError{
		Name:    NameValidationError,
		Code:    CodeModelValidationFailed,
		Message: "Some validation errors occurred.",
		Results: Results{Errors: issues},
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// ResourceNotFound creates a 404 envelope.
func ResourceNotFound(issues ...Issue) *ModelError {
	if issues == nil {
		issues = []Issue{}
	}
	return &ModelError{
		Name:    NameResourceNotFound,
		Code:    CodeResourceNotFound,
		Message: "The requested resource was not found.",
		Results: Results{Errors: issues},
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// ServerError creates a 500 envelope around an unexpected fault. The cause is
// kept for logging and never serialized.
func ServerError(err error) *ModelError {
	if err == nil {
		err = ErrInternal
	}
	return &ModelError{
		Name:    NameServerError,
		Code:    CodeInternalServerError,
		Message: "An internal server error occurred.",
		Results: Results{Errors: []Issue{}},
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}
