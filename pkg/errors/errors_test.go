package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want int
	}{
		{"validation", Validation(Fields{"doctor_name": {"required"}}), http.StatusUnprocessableEntity},
		{"not found", NotFound("appointment not found", nil), http.StatusNotFound},
		{"conflict", Conflict("already cancelled", nil), http.StatusConflict},
		{"bad request", BadRequest("invalid patient id", nil), http.StatusBadRequest},
		{"too many requests", TooManyRequests("too many requests"), http.StatusTooManyRequests},
		{"too large", TooLarge("request body too large"), http.StatusRequestEntityTooLarge},
		{"internal", Internal("failed to create appointment", stderrors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestAsUnwrapsChain(t *testing.T) {
	wrapped := fmt.Errorf("booking: %w", Conflict("already cancelled", nil))

	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrConflict, appErr.Code)
	assert.Equal(t, ErrConflict, CodeOf(wrapped))
	assert.Equal(t, ErrInternal, CodeOf(stderrors.New("plain")))
}

func TestFieldsAdd(t *testing.T) {
	f := Fields{}
	f.Add("date_time", "first")
	f.Add("date_time", "second")

	assert.True(t, f.Has("date_time"))
	assert.False(t, f.Has("status"))
	assert.Equal(t, []string{"first", "second"}, f["date_time"])
}

func TestInternalKeepsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Internal("failed to get appointments", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to get appointments", err.Message)
}
