package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/internal/service/event"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

var fixedNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

// fixedSlots answers every slot lookup with taken, whatever the store holds.
// taken=false hides booked slots from the pre-check so that only the store's
// unique constraints can catch a collision.
type fixedSlots struct {
	repository.Store
	taken bool
}

func staleReads(store repository.Store) fixedSlots { return fixedSlots{Store: store} }
func fullyBooked(store repository.Store) fixedSlots { return fixedSlots{Store: store, taken: true} }

func (s fixedSlots) Appointments() repository.AppointmentRepository {
	return slotAnswer{s.Store.Appointments(), s.taken}
}

func (s fixedSlots) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return fn(ctx, fixedSlots{Store: tx, taken: s.taken})
	})
}

type slotAnswer struct {
	repository.AppointmentRepository
	taken bool
}

func (a slotAnswer) PatientSlotTaken(context.Context, uuid.UUID, time.Time, *uuid.UUID) (bool, error) {
	return a.taken, nil
}

func (a slotAnswer) DoctorSlotTaken(context.Context, string, time.Time, *uuid.UUID) (bool, error) {
	return a.taken, nil
}

type fixture struct {
	store   *memory.Store
	svc     *Service
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	return &fixture{store: store, svc: newService(store)}
}

func newService(store repository.Store) *Service {
	v := validator.New(validator.WithClock(func() time.Time { return fixedNow }))
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	return NewService(store, v, event.NewEventService(), m)
}

func (f *fixture) patient(t *testing.T, first, last string) *model.Patient {
	t.Helper()
	p := &model.Patient{
		Base:      model.Base{ID: uuid.New(), CreatedAt: fixedNow, UpdatedAt: fixedNow},
		FirstName: first,
		LastName:  last,
		BirthDate: model.NewDate(1985, time.July, 4),
		Gender:    model.GenderMale,
	}
	require.NoError(t, f.store.Patients().Create(context.Background(), p))
	return p
}

func (f *fixture) book(t *testing.T, patientID uuid.UUID, doctor, at string) *model.Appointment {
	t.Helper()
	apt, err := f.svc.CreateAppointment(context.Background(), &model.CreateAppointmentRequest{
		PatientID:      patientID.String(),
		DoctorName:     doctor,
		Specialization: "Therapist",
		DateTime:       at,
	})
	require.NoError(t, err)
	return apt
}

func (f *fixture) pendingEvents(t *testing.T) []*model.OutboxEvent {
	t.Helper()
	events, err := f.store.Outbox().GetPendingEventsWithLock(context.Background(), 100)
	require.NoError(t, err)
	return events
}

func requireCode(t *testing.T, err error, code apperrors.ErrorCode, message string) *apperrors.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
	return appErr
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture(t)
	john := f.patient(t, "John", "Doe")

	apt := f.book(t, john.ID, "  Dr. House ", "2025-03-20 10:00")

	assert.Equal(t, "Dr. House", apt.DoctorName)
	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
	assert.Equal(t, time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC), apt.DateTime)

	got, err := f.svc.GetAppointment(context.Background(), apt.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Patient)
	assert.Equal(t, "John", got.Patient.FirstName)

	events := f.pendingEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventAppointmentCreated, events[0].EventType)
	assert.Equal(t, apt.ID, events[0].AggregateID)
}

func TestCreateAppointmentValidation(t *testing.T) {
	f := newFixture(t)
	john := f.patient(t, "John", "Doe")
	ctx := context.Background()

	t.Run("missing fields", func(t *testing.T) {
		_, err := f.svc.CreateAppointment(ctx, &model.CreateAppointmentRequest{DoctorName: "   "})
		appErr := requireCode(t, err, apperrors.ErrValidation, "validation failed")
		assert.Equal(t, []string{"The doctor name field is required."}, appErr.Fields["doctor_name"])
		assert.True(t, appErr.Fields.Has("patient_id"))
		assert.True(t, appErr.Fields.Has("specialization"))
		assert.True(t, appErr.Fields.Has("date_time"))
	})

	t.Run("past date", func(t *testing.T) {
		_, err := f.svc.CreateAppointment(ctx, &model.CreateAppointmentRequest{
			PatientID:      john.ID.String(),
			DoctorName:     "Dr. House",
			Specialization: "Therapist",
			DateTime:       "2025-03-14 11:59",
		})
		appErr := requireCode(t, err, apperrors.ErrValidation, "")
		assert.Equal(t, []string{"The date time field must be a date after now."}, appErr.Fields["date_time"])
	})

	t.Run("unknown patient", func(t *testing.T) {
		_, err := f.svc.CreateAppointment(ctx, &model.CreateAppointmentRequest{
			PatientID:      uuid.NewString(),
			DoctorName:     "Dr. House",
			Specialization: "Therapist",
			DateTime:       "2025-03-20 10:00",
		})
		appErr := requireCode(t, err, apperrors.ErrValidation, "")
		assert.Equal(t, []string{msgInvalidPatient}, appErr.Fields["patient_id"])
	})

	t.Run("long doctor name", func(t *testing.T) {
		_, err := f.svc.CreateAppointment(ctx, &model.CreateAppointmentRequest{
			PatientID:      john.ID.String(),
			DoctorName:     "Dr. Abcdefghijklmnopqrstuvwxyz",
			Specialization: "Therapist",
			DateTime:       "2025-03-20 10:00",
		})
		appErr := requireCode(t, err, apperrors.ErrValidation, "")
		assert.Equal(t, []string{"The doctor name field must not be greater than 25 characters."}, appErr.Fields["doctor_name"])
	})

	assert.Empty(t, f.pendingEvents(t))
}

func TestCreateAppointmentConflicts(t *testing.T) {
	f := newFixture(t)
	john := f.patient(t, "John", "Doe")
	jane := f.patient(t, "Jane", "Roe")
	ctx := context.Background()
	f.book(t, john.ID, "Dr. House", "2025-03-20 10:00")

	tests := []struct {
		name    string
		patient uuid.UUID
		doctor  string
		at      string
		message string
	}{
		{"patient busy", john.ID, "Dr. Wilson", "2025-03-20 10:00", MsgPatientConflict},
		{"doctor busy", jane.ID, "Dr. House", "2025-03-20T10:00:00Z", MsgDoctorConflict},
		{"both busy reports patient", john.ID, "Dr. House", "2025-03-20 10:00:00", MsgPatientConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAppointment(ctx, &model.CreateAppointmentRequest{
				PatientID:      tt.patient.String(),
				DoctorName:     tt.doctor,
				Specialization: "Cardiologist",
				DateTime:       tt.at,
			})
			appErr := requireCode(t, err, apperrors.ErrConflict, tt.message)
			assert.Equal(t, 409, appErr.StatusCode())
		})
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(f.svc.metrics.BookingConflicts.WithLabelValues("patient", "check")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.svc.metrics.BookingConflicts.WithLabelValues("doctor", "check")))

	// Neighbouring slots stay bookable.
	f.book(t, john.ID, "Dr. House", "2025-03-20 10:30")
	f.book(t, jane.ID, "Dr. Wilson", "2025-03-20 10:00")
	assert.Len(t, f.pendingEvents(t), 3)
}

func TestCreateAppointmentConstraintBackstop(t *testing.T) {
	store := memory.NewStore()
	f := &fixture{store: store, svc: newService(store)}
	john := f.patient(t, "John", "Doe")
	jane := f.patient(t, "Jane", "Roe")
	f.book(t, john.ID, "Dr. House", "2025-03-20 10:00")

	stale := newService(staleReads(store))
	ctx := context.Background()

	_, err := stale.CreateAppointment(ctx, &model.CreateAppointmentRequest{
		PatientID:      john.ID.String(),
		DoctorName:     "Dr. Wilson",
		Specialization: "Therapist",
		DateTime:       "2025-03-20 10:00",
	})
	requireCode(t, err, apperrors.ErrConflict, MsgPatientConflict)

	_, err = stale.CreateAppointment(ctx, &model.CreateAppointmentRequest{
		PatientID:      jane.ID.String(),
		DoctorName:     "Dr. House",
		Specialization: "Therapist",
		DateTime:       "2025-03-20 10:00",
	})
	requireCode(t, err, apperrors.ErrConflict, MsgDoctorConflict)

	assert.Equal(t, float64(1), testutil.ToFloat64(stale.metrics.BookingConflicts.WithLabelValues("patient", "constraint")))
	assert.Equal(t, float64(1), testutil.ToFloat64(stale.metrics.BookingConflicts.WithLabelValues("doctor", "constraint")))
	assert.Len(t, f.pendingEvents(t), 1, "rejected bookings leave no events behind")
}

func TestUpdateAppointment(t *testing.T) {
	f := newFixture(t)
	john := f.patient(t, "John", "Doe")
	jane := f.patient(t, "Jane", "Roe")
	ctx := context.Background()

	mine := f.book(t, john.ID, "Dr. House", "2025-03-20 10:00")
	f.book(t, jane.ID, "Dr. Wilson", "2025-03-20 11:00")

	t.Run("same slot is not a conflict with itself", func(t *testing.T) {
		at := "2025-03-20 10:00"
		doctor := "Dr. House"
		apt, err := f.svc.UpdateAppointment(ctx, mine.ID, &model.UpdateAppointmentRequest{DoctorName: &doctor, DateTime: &at})
		require.NoError(t, err)
		assert.Equal(t, "Dr. House", apt.DoctorName)
	})

	t.Run("moving onto a booked doctor", func(t *testing.T) {
		doctor := "Dr. Wilson"
		at := "2025-03-20 11:00"
		_, err := f.svc.UpdateAppointment(ctx, mine.ID, &model.UpdateAppointmentRequest{DoctorName: &doctor, DateTime: &at})
		requireCode(t, err, apperrors.ErrConflict, MsgDoctorConflict)
	})

	t.Run("doctor change checks the current time", func(t *testing.T) {
		doctor := "Dr. Wilson"
		_, err := f.svc.UpdateAppointment(ctx, mine.ID, &model.UpdateAppointmentRequest{DoctorName: &doctor})
		require.NoError(t, err, "Dr. Wilson is free at 10:00")

		house := "Dr. House"
		at := "2025-03-20 11:00"
		apt, err := f.svc.UpdateAppointment(ctx, mine.ID, &model.UpdateAppointmentRequest{DoctorName: &house, DateTime: &at})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 3, 20, 11, 0, 0, 0, time.UTC), apt.DateTime)
	})

	t.Run("specialization only", func(t *testing.T) {
		spec := "Dentist"
		apt, err := f.svc.UpdateAppointment(ctx, mine.ID, &model.UpdateAppointmentRequest{Specialization: &spec})
		require.NoError(t, err)
		assert.Equal(t, "Dentist", apt.Specialization)
		assert.Equal(t, "Dr. House", apt.DoctorName)
	})

	t.Run("status is applied without transition rules", func(t *testing.T) {
		for _, status := range []string{"cancelled", "scheduled", "completed"} {
			s := status
			apt, err := f.svc.UpdateAppointment(ctx, mine.ID, &model.UpdateAppointmentRequest{Status: &s})
			require.NoError(t, err)
			assert.Equal(t, model.AppointmentStatus(status), apt.Status)
		}
	})

	t.Run("invalid status", func(t *testing.T) {
		s := "archived"
		_, err := f.svc.UpdateAppointment(ctx, mine.ID, &model.UpdateAppointmentRequest{Status: &s})
		appErr := requireCode(t, err, apperrors.ErrValidation, "")
		assert.Equal(t, []string{"The selected status is invalid."}, appErr.Fields["status"])
	})

	t.Run("blank doctor", func(t *testing.T) {
		blank := " "
		_, err := f.svc.UpdateAppointment(ctx, mine.ID, &model.UpdateAppointmentRequest{DoctorName: &blank})
		requireCode(t, err, apperrors.ErrValidation, "")
	})

	t.Run("missing appointment", func(t *testing.T) {
		spec := "Dentist"
		_, err := f.svc.UpdateAppointment(ctx, uuid.New(), &model.UpdateAppointmentRequest{Specialization: &spec})
		requireCode(t, err, apperrors.ErrNotFound, MsgNotFound)
	})
}

func TestUpdateAppointmentSkipsConflictCheckForStatusAndSpecialization(t *testing.T) {
	f := newFixture(t)
	john := f.patient(t, "John", "Doe")
	mine := f.book(t, john.ID, "Dr. House", "2025-03-20 10:00")
	ctx := context.Background()

	// Every slot looks taken, so any conflict check would fail the update.
	booked := newService(fullyBooked(f.store))

	dentist := "Dentist"
	apt, err := booked.UpdateAppointment(ctx, mine.ID, &model.UpdateAppointmentRequest{Specialization: &dentist})
	require.NoError(t, err)
	assert.Equal(t, "Dentist", apt.Specialization)

	for _, status := range []string{"completed", "cancelled", "scheduled"} {
		st := status
		apt, err = booked.UpdateAppointment(ctx, mine.ID, &model.UpdateAppointmentRequest{Status: &st})
		require.NoError(t, err)
		assert.Equal(t, model.AppointmentStatus(status), apt.Status)
	}

	doctor := "Dr. Wilson"
	_, err = booked.UpdateAppointment(ctx, mine.ID, &model.UpdateAppointmentRequest{DoctorName: &doctor})
	requireCode(t, err, apperrors.ErrConflict, MsgPatientConflict)

	at := "2025-03-21 10:00"
	_, err = booked.UpdateAppointment(ctx, mine.ID, &model.UpdateAppointmentRequest{DateTime: &at})
	requireCode(t, err, apperrors.ErrConflict, MsgPatientConflict)

	got, err := f.svc.GetAppointment(ctx, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. House", got.DoctorName)
}

func TestUpdateAppointmentConstraintBackstop(t *testing.T) {
	store := memory.NewStore()
	f := &fixture{store: store, svc: newService(store)}
	john := f.patient(t, "John", "Doe")
	jane := f.patient(t, "Jane", "Roe")
	f.book(t, john.ID, "Dr. House", "2025-03-20 10:00")
	other := f.book(t, jane.ID, "Dr. Wilson", "2025-03-20 11:00")

	stale := newService(staleReads(store))
	doctor := "Dr. House"
	at := "2025-03-20 10:00"
	_, err := stale.UpdateAppointment(context.Background(), other.ID, &model.UpdateAppointmentRequest{DoctorName: &doctor, DateTime: &at})
	requireCode(t, err, apperrors.ErrConflict, MsgDoctorConflict)

	got, err := f.svc.GetAppointment(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Wilson", got.DoctorName)
}

func TestCancelAppointment(t *testing.T) {
	f := newFixture(t)
	john := f.patient(t, "John", "Doe")
	apt := f.book(t, john.ID, "Dr. House", "2025-03-20 10:00")
	ctx := context.Background()

	cancelled, err := f.svc.CancelAppointment(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)

	_, err = f.svc.CancelAppointment(ctx, apt.ID)
	requireCode(t, err, apperrors.ErrConflict, MsgAlreadyCancelled)

	_, err = f.svc.CancelAppointment(ctx, uuid.New())
	requireCode(t, err, apperrors.ErrNotFound, MsgNotFound)

	// A cancelled appointment still holds its slot.
	_, err = f.svc.CreateAppointment(ctx, &model.CreateAppointmentRequest{
		PatientID:      john.ID.String(),
		DoctorName:     "Dr. Wilson",
		Specialization: "Therapist",
		DateTime:       "2025-03-20 10:00",
	})
	requireCode(t, err, apperrors.ErrConflict, MsgPatientConflict)

	types := []string{}
	for _, e := range f.pendingEvents(t) {
		types = append(types, e.EventType)
	}
	assert.ElementsMatch(t, []string{model.EventAppointmentCreated, model.EventAppointmentCancelled}, types)
}

func TestDeleteAppointment(t *testing.T) {
	f := newFixture(t)
	john := f.patient(t, "John", "Doe")
	apt := f.book(t, john.ID, "Dr. House", "2025-03-20 10:00")
	ctx := context.Background()

	require.NoError(t, f.svc.DeleteAppointment(ctx, apt.ID))

	_, err := f.svc.GetAppointment(ctx, apt.ID)
	requireCode(t, err, apperrors.ErrNotFound, MsgNotFound)

	err = f.svc.DeleteAppointment(ctx, apt.ID)
	requireCode(t, err, apperrors.ErrNotFound, MsgNotFound)

	// The freed slot can be booked again.
	f.book(t, john.ID, "Dr. House", "2025-03-20 10:00")
}

func TestListAppointments(t *testing.T) {
	f := newFixture(t)
	john := f.patient(t, "John", "Doe")
	jane := f.patient(t, "Jane", "Roe")
	ctx := context.Background()

	f.book(t, john.ID, "Dr. House", "2025-03-22 10:00")
	f.book(t, john.ID, "Dr. Wilson", "2025-03-20 10:00")
	f.book(t, jane.ID, "Dr. House", "2025-03-21 10:00")

	list, total, err := f.svc.ListAppointments(ctx, model.AppointmentFilter{DoctorName: "house"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 2)
	assert.True(t, list[0].DateTime.Before(list[1].DateTime))

	list, total, err = f.svc.ListAppointments(ctx, model.AppointmentFilter{
		Order:      model.SortDesc,
		Pagination: model.Pagination{Page: 1, PerPage: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, time.Date(2025, 3, 22, 10, 0, 0, 0, time.UTC), list[0].DateTime)

	list, total, err = f.svc.ListPatientAppointments(ctx, john.ID, model.AppointmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, apt := range list {
		assert.Equal(t, john.ID, apt.PatientID)
	}

	_, _, err = f.svc.ListPatientAppointments(ctx, uuid.New(), model.AppointmentFilter{})
	requireCode(t, err, apperrors.ErrNotFound, MsgPatientNotFound)
}

func TestBookingOperationOutcomes(t *testing.T) {
	f := newFixture(t)
	john := f.patient(t, "John", "Doe")
	f.book(t, john.ID, "Dr. House", "2025-03-20 10:00")

	_, err := f.svc.CreateAppointment(context.Background(), &model.CreateAppointmentRequest{})
	require.Error(t, err)

	ops := f.svc.metrics.BookingOperations
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("create", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("create", "invalid")))
}
