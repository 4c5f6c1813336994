package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appointmenthandler "github.com/jwalitptl/clinic-api/internal/handler/appointment"
	"github.com/jwalitptl/clinic-api/internal/handler/health"
	patienthandler "github.com/jwalitptl/clinic-api/internal/handler/patient"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/internal/service/appointment"
	"github.com/jwalitptl/clinic-api/internal/service/event"
	"github.com/jwalitptl/clinic-api/internal/service/patient"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

type envelope struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
	Errors  map[string][]string    `json:"errors"`
}

type apiClient struct {
	t      *testing.T
	engine *gin.Engine
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("clinic", reg)
	v := validator.New()
	events := event.NewEventService()

	r := NewRouter(
		appointmenthandler.NewHandler(appointment.NewService(store, v, events, m)),
		patienthandler.NewHandler(patient.NewService(store, v, events, nil, m)),
		health.NewHandler(map[string]health.Pinger{"store": store}),
		RouterConfig{
			CORSConfig: middleware.DefaultCORSConfig(),
			Timeout:    5 * time.Second,
			Metrics:    m,
			Gatherer:   reg,
		},
	)
	r.Setup()
	return &apiClient{t: t, engine: r.Engine()}
}

func (a *apiClient) do(method, path string, body interface{}) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func (a *apiClient) createPatient(first string) string {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/v1/patients", map[string]string{
		"first_name": first,
		"last_name":  "Doe",
		"birth_date": "1990-05-10",
		"gender":     "male",
	})
	require.Equal(a.t, http.StatusCreated, code, env.Message)
	var data map[string]interface{}
	require.NoError(a.t, json.Unmarshal(env.Data, &data))
	_, hasStatus := data["status"]
	assert.False(a.t, hasStatus, "patients carry no status")
	return data["id"].(string)
}

func decode(t *testing.T, env envelope) map[string]interface{} {
	t.Helper()
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

func tomorrowAt10() string {
	d := time.Now().UTC().AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), 10, 0, 0, 0, time.UTC).Format("2006-01-02 15:04")
}

func TestBookingScenario(t *testing.T) {
	api := newTestAPI(t)
	john := api.createPatient("John")
	jane := api.createPatient("Jane")
	slot := tomorrowAt10()

	booking := map[string]string{
		"patient_id":     john,
		"doctor_name":    "Dr. House",
		"specialization": "Therapist",
		"date_time":      slot,
	}

	code, env := api.do(http.MethodPost, "/api/v1/appointments", booking)
	require.Equal(t, http.StatusCreated, code, env.Message)
	assert.Equal(t, "success", env.Status)
	assert.Equal(t, "appointment created", env.Message)
	created := decode(t, env)
	assert.Equal(t, "scheduled", created["status"])
	id := created["id"].(string)

	code, env = api.do(http.MethodPost, "/api/v1/appointments", booking)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "error", env.Status)
	assert.Contains(t, env.Message, "patient already has appointment")

	booking["patient_id"] = jane
	code, env = api.do(http.MethodPost, "/api/v1/appointments", booking)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, env.Message, "doctor already booked")

	code, env = api.do(http.MethodPost, "/api/v1/appointments/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "cancelled", decode(t, env)["status"])

	code, env = api.do(http.MethodPost, "/api/v1/appointments/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already cancelled", env.Message)
}

func TestAppointmentValidationEnvelope(t *testing.T) {
	api := newTestAPI(t)

	code, env := api.do(http.MethodPost, "/api/v1/appointments", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "error", env.Status)
	assert.Contains(t, env.Errors, "patient_id")
	assert.Contains(t, env.Errors, "doctor_name")
	assert.Contains(t, env.Errors, "specialization")
	assert.Contains(t, env.Errors, "date_time")

	code, env = api.do(http.MethodPost, "/api/v1/appointments", `{"doctor_name": 7}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, []string{"The doctor name field must be a string."}, env.Errors["doctor_name"])

	code, _ = api.do(http.MethodPost, "/api/v1/appointments", `{"doctor_name":`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAppointmentNotFound(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{
		"/api/v1/appointments/9b2c7a8e-4c55-4bd4-9f0e-0d3c1c7e8a11",
		"/api/v1/appointments/not-a-uuid",
	} {
		code, env := api.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "appointment not found", env.Message)
	}

	code, env := api.do(http.MethodDelete, "/api/v1/appointments/9b2c7a8e-4c55-4bd4-9f0e-0d3c1c7e8a11", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", env.Status)

	code, env = api.do(http.MethodGet, "/api/v1/patients/not-a-uuid/appointments", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid patient id", env.Message)

	code, env = api.do(http.MethodGet, "/api/v1/patients/9b2c7a8e-4c55-4bd4-9f0e-0d3c1c7e8a11/appointments", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "patient not found", env.Message)
}

func TestListAppointmentsMeta(t *testing.T) {
	api := newTestAPI(t)
	john := api.createPatient("John")
	base := time.Now().UTC().AddDate(0, 0, 2)

	for i := 0; i < 3; i++ {
		at := time.Date(base.Year(), base.Month(), base.Day(), 9+i, 0, 0, 0, time.UTC)
		code, env := api.do(http.MethodPost, "/api/v1/appointments", map[string]string{
			"patient_id":     john,
			"doctor_name":    "Dr. House",
			"specialization": "Therapist",
			"date_time":      at.Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, code, env.Message)
	}

	code, env := api.do(http.MethodGet, "/api/v1/appointments?doctor_name=HOUSE&per_page=2&order=desc", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "appointments list", env.Message)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "John", rows[0]["patient"].(map[string]interface{})["first_name"])
	assert.Greater(t, rows[0]["date_time"], rows[1]["date_time"])

	assert.EqualValues(t, 1, env.Meta["current_page"])
	assert.EqualValues(t, 2, env.Meta["per_page"])
	assert.EqualValues(t, 3, env.Meta["total"])
	assert.EqualValues(t, 2, env.Meta["last_page"])
	assert.Nil(t, env.Meta["prev"])
	assert.Contains(t, env.Meta["next"], "page=2")

	code, env = api.do(http.MethodGet, "/api/v1/patients/"+john+"/appointments?per_page=500", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 100, env.Meta["per_page"])
	assert.Equal(t, "patient appointments", env.Message)
}

func TestPatientLifecycle(t *testing.T) {
	api := newTestAPI(t)
	john := api.createPatient("John")

	code, env := api.do(http.MethodPost, "/api/v1/appointments", map[string]string{
		"patient_id":     john,
		"doctor_name":    "Dr. House",
		"specialization": "Therapist",
		"date_time":      tomorrowAt10(),
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	aptID := decode(t, env)["id"].(string)

	code, env = api.do(http.MethodPatch, "/api/v1/patients/"+john, map[string]string{"last_name": "Smith"})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "Smith", decode(t, env)["last_name"])

	code, env = api.do(http.MethodGet, "/api/v1/patients?search=smi", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, env.Meta["total"])

	code, _ = api.do(http.MethodDelete, "/api/v1/patients/"+john, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = api.do(http.MethodGet, "/api/v1/appointments/"+aptID, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = api.do(http.MethodGet, "/api/v1/patients/"+john, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProbesAndUnknownRoutes(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		api.engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
	}

	api.do(http.MethodGet, "/api/v1/appointments", nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "clinic_http_requests_total")

	code, env := api.do(http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "route not found", env.Message)
}
