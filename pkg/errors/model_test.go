package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationFailed_Envelope(t *testing.T) {
	issues := []Issue{
		{Code: 200005, Message: "Exactly one primary address must be set. [2] found instead.", Path: []string{"addresses"}},
	}
	err := ValidationFailed(issues)

	assert.Equal(t, NameValidationError, err.Name)
	assert.Equal(t, CodeModelValidationFailed, err.Code)
	assert.Equal(t, "Some validation errors occurred.", err.Message)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, issues, err.Issues())
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestValidationFailed_JSONShape(t *testing.T) {
	err := ValidationFailed([]Issue{
		{Code: 200002, Message: "Incorrect coordinates format. Latitude [91] is not within allowed range", Path: []string{"addresses", "location", "coordinates"}},
	})

	data, mErr := json.Marshal(err)
	require.NoError(t, mErr)

	expected := `{
		"name": "ValidationError",
		"code": "MODEL_VALIDATION_FAILED",
		"message": "Some validation errors occurred.",
		"results": {"errors": [{"code": 200002, "message": "Incorrect coordinates format. Latitude [91] is not within allowed range", "path": ["addresses", "location", "coordinates"]}]},
		"status": 400
	}`
	assert.JSONEq(t, expected, string(data))
}

func TestResourceNotFound_Envelope(t *testing.T) {
	err := ResourceNotFound(Issue{Code: 100002, Message: "No user with id [42] was found.", Path: []string{"id"}})

	assert.Equal(t, NameResourceNotFound, err.Name)
	assert.Equal(t, http.StatusNotFound, err.Status)
	require.Len(t, err.Issues(), 1)
	assert.Equal(t, 100002, err.Issues()[0].Code)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResourceNotFound_NoIssuesSerializesEmptyList(t *testing.T) {
	data, err := json.Marshal(ResourceNotFound())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"errors":[]`)
}

func TestServerError_KeepsCauseOutOfJSON(t *testing.T) {
	cause := fmt.Errorf("connection reset by peer")
	err := ServerError(cause)

	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.True(t, errors.Is(err, cause))

	data, mErr := json.Marshal(err)
	require.NoError(t, mErr)
	assert.NotContains(t, string(data), "connection reset")
}

func TestServerError_NilCause(t *testing.T) {
	err := ServerError(nil)
	assert.True(t, errors.Is(err, ErrInternal))
}

func TestModelError_ErrorString(t *testing.T) {
	err := ValidationFailed([]Issue{{Code: 200003}, {Code: 200002}})
	assert.Equal(t, "MODEL_VALIDATION_FAILED: Some validation errors occurred. [200003,200002]", err.Error())
	assert.Equal(t, "RESOURCE_NOT_FOUND: The requested resource was not found.", ResourceNotFound().Error())
}
