package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrPatientSlotTaken and ErrDoctorSlotTaken are returned when a write
	// violates one of the slot uniqueness constraints.
	ErrPatientSlotTaken = errors.New("patient already has an appointment at this time")
	ErrDoctorSlotTaken  = errors.New("doctor already booked at this time")
	// ErrPatientMissing is returned when an appointment references an unknown patient.
	ErrPatientMissing = errors.New("referenced patient does not exist")
)

// All repository interfaces in one file
type (
	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		Exists(ctx context.Context, id uuid.UUID) (bool, error)
		Update(ctx context.Context, patient *model.Patient) error
		// Delete removes the patient together with every appointment it owns.
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, int, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// GetForUpdate loads the row and locks it until the surrounding transaction ends.
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, int, error)
		CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error)
		PatientSlotTaken(ctx context.Context, patientID uuid.UUID, at time.Time, exclude *uuid.UUID) (bool, error)
		DoctorSlotTaken(ctx context.Context, doctorName string, at time.Time, exclude *uuid.UUID) (bool, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// GetPendingEventsWithLock claims due pending/retry rows; other workers skip them.
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// Store hands out repositories bound to either the pool or a transaction.
	Store interface {
		Patients() PatientRepository
		Appointments() AppointmentRepository
		Outbox() OutboxRepository
		// WithinTx runs fn against a transaction-bound Store. fn's error rolls
		// the transaction back. Called on a transaction-bound Store it reuses
		// the open transaction.
		WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
		Ping(ctx context.Context) error
	}
)
