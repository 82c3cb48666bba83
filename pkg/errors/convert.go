package errors

import (
	"errors"
	"net/http"
	"strings"
)

// AsModelError converts any error into the client envelope. ModelErrors are
// returned unchanged; AppErrors keep their code, message and status; bare
// sentinels map to their status; anything else becomes a ServerError.
func AsModelError(err error) *ModelError {
	var modelErr *ModelError
	if errors.As(err, &modelErr) {
		return modelErr
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &ModelError{
			Name:    nameForStatus(appErr.Status),
			Code:    appErr.Code,
			Message: appErr.Message,
			Results: Results{Errors: []Issue{}},
			Status:  appErr.Status,
			Err:     appErr,
		}
	}

	switch status := HTTPStatus(err); status {
	case http.StatusNotFound:
		e := ResourceNotFound()
		e.Err = err
		return e
	case http.StatusInternalServerError:
		return ServerError(err)
	default:
		return &ModelError{
			Name:    nameForStatus(status),
			Code:    statusCode(status),
			Message: err.Error(),
			Results: Results{Errors: []Issue{}},
			Status:  status,
			Err:     err,
		}
	}
}

func nameForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return NameValidationError
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusNotFound:
		return NameResourceNotFound
	case http.StatusConflict:
		return "Conflict"
	default:
		return NameServerError
	}
}

// statusCode turns "Bad Request" into "BAD_REQUEST".
func statusCode(status int) string {
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
