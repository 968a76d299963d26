package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		sentinel error
		status   int
		code     string
	}{
		{"not found", NotFound("member", "abc"), ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"bad request", BadRequest("nope"), ErrBadRequest, http.StatusBadRequest, "BAD_REQUEST"},
		{"validation", Validation("invalid", nil), ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"conflict", Conflict("busy"), ErrConflict, http.StatusConflict, "CONFLICT"},
		{"configuration", Configuration("missing weights"), ErrConfiguration, http.StatusInternalServerError, "CONFIGURATION_ERROR"},
		{"unavailable", Unavailable("pacto", fmt.Errorf("timeout")), ErrUnavailable, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestWrapKeepsAppErrorClassification(t *testing.T) {
	original := NotFound("member", "42")
	wrapped := Wrap(original, "loading profile")

	assert.Equal(t, http.StatusNotFound, wrapped.HTTPStatus)
	assert.Equal(t, "loading profile: member not found", wrapped.Message)
	assert.ErrorIs(t, wrapped, ErrNotFound)
	// the original is not mutated
	assert.Equal(t, "member not found", original.Message)
}

func TestWrapPlainError(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := Wrap(cause, "failed to list members")

	assert.Equal(t, http.StatusInternalServerError, wrapped.HTTPStatus)
	assert.ErrorIs(t, wrapped, cause)
}

func TestAsFindsWrappedAppError(t *testing.T) {
	err := fmt.Errorf("member 7: %w", Conflict("already running"))

	appErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "CONFLICT", appErr.Code)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}
