package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewMeta(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://clinic.test/api/v1/appointments?doctor_name=house&page=2&per_page=5", nil)

	meta := NewMeta(r, 2, 5, 12)
	assert.Equal(t, 3, meta.LastPage)
	require.NotNil(t, meta.Next)
	require.NotNil(t, meta.Prev)
	assert.Equal(t, "http://clinic.test/api/v1/appointments?doctor_name=house&page=3&per_page=5", *meta.Next)
	assert.Equal(t, "http://clinic.test/api/v1/appointments?doctor_name=house&page=1&per_page=5", *meta.Prev)

	meta = NewMeta(r, 1, 10, 0)
	assert.Equal(t, 1, meta.LastPage)
	assert.Nil(t, meta.Next)
	assert.Nil(t, meta.Prev)
}

func TestNewMetaForwardedProto(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://clinic.test/api/v1/patients", nil)
	r.Header.Set("X-Forwarded-Proto", "https")

	meta := NewMeta(r, 1, 1, 2)
	require.NotNil(t, meta.Next)
	assert.Equal(t, "https://clinic.test/api/v1/patients?page=2", *meta.Next)
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", apperrors.Validation(apperrors.Fields{"doctor_name": {"The doctor name field is required."}}), 422, "validation failed"},
		{"conflict", apperrors.Conflict("already cancelled", nil), 409, "already cancelled"},
		{"plain error", errors.New("pq: connection refused"), 500, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			RespondWithError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, StatusError, body.Status)
			assert.Equal(t, tt.message, body.Message)
			assert.NotContains(t, w.Body.String(), "pq:")
		})
	}
}

func TestRespondWithListRendersEmptyArray(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondWithList[string](c, "patients list", nil, &Meta{CurrentPage: 1, PerPage: 10, LastPage: 1})

	assert.Contains(t, w.Body.String(), `"data":[]`)
	assert.Contains(t, w.Body.String(), `"next":null`)
}

func TestBindJSON(t *testing.T) {
	type payload struct {
		DoctorName string `json:"doctor_name"`
	}

	bind := func(body string) (payload, error) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")
		var p payload
		err := BindJSON(c, &p)
		return p, err
	}

	p, err := bind(`{"doctor_name":"Dr. House"}`)
	require.NoError(t, err)
	assert.Equal(t, "Dr. House", p.DoctorName)

	_, err = bind(``)
	assert.NoError(t, err)

	_, err = bind(`{"doctor_name":42}`)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrValidation, appErr.Code)
	assert.Equal(t, []string{"The doctor name field must be a string."}, appErr.Fields["doctor_name"])

	_, err = bind(`{"doctor_name":`)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}
