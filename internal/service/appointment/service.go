package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/event"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

const (
	MsgPatientConflict  = "conflict: patient already has appointment at this time"
	MsgDoctorConflict   = "conflict: doctor already booked at this time"
	MsgAlreadyCancelled = "already cancelled"
	MsgNotFound         = "appointment not found"
	MsgPatientNotFound  = "patient not found"

	msgInvalidPatient = "The selected patient id is invalid."
)

// Service is the booking engine. Every mutation runs its conflict checks and
// its write in one store transaction.
type Service struct {
	store    repository.Store
	checker  ConflictChecker
	validate *validator.Validator
	events   event.Emitter
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func NewService(store repository.Store, validate *validator.Validator, events event.Emitter, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		validate: validate,
		events:   events,
		metrics:  m,
		tracer:   otel.Tracer("clinic-api/appointment"),
	}
}

func (s *Service) CreateAppointment(ctx context.Context, req *model.CreateAppointmentRequest) (apt *model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointment.create")
	defer func() { s.finish(span, "create", err) }()

	req.Trim()
	fields := s.validate.Validate(req)
	if fields == nil {
		fields = apperrors.Fields{}
	}

	patientID, _ := uuid.Parse(req.PatientID)
	if !fields.Has("patient_id") {
		exists, err := s.store.Patients().Exists(ctx, patientID)
		if err != nil {
			return nil, apperrors.Internal("failed to create appointment", err)
		}
		if !exists {
			fields.Add("patient_id", msgInvalidPatient)
		}
	}
	if len(fields) > 0 {
		return nil, apperrors.Validation(fields)
	}

	at, err := validator.ParseTimestamp(req.DateTime)
	if err != nil {
		return nil, apperrors.Internal("failed to create appointment", err)
	}

	now := s.validate.Now().UTC()
	apt = &model.Appointment{
		Base:           model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientID:      patientID,
		DoctorName:     req.DoctorName,
		Specialization: req.Specialization,
		DateTime:       at,
		Status:         model.AppointmentStatusScheduled,
	}
	span.SetAttributes(attribute.String("appointment.id", apt.ID.String()))

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		slot := Slot{PatientID: apt.PatientID, DoctorName: apt.DoctorName, DateTime: apt.DateTime}
		if err := s.ensureFree(ctx, tx, slot); err != nil {
			return err
		}
		if err := tx.Appointments().Create(ctx, apt); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx.Outbox(), model.EventAppointmentCreated, apt.ID, apt)
	})
	if err != nil {
		return nil, s.translate(err, "failed to create appointment")
	}
	return apt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.store.Appointments().Get(ctx, id)
	if err != nil {
		return nil, s.translate(err, "failed to get appointment")
	}
	return apt, nil
}

func (s *Service) ListAppointments(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, int, error) {
	filter.Pagination = filter.Pagination.Normalize()
	appointments, total, err := s.store.Appointments().List(ctx, filter)
	if err != nil {
		return nil, 0, s.translate(err, "failed to get appointments")
	}
	return appointments, total, nil
}

// ListPatientAppointments lists one patient's appointments with the same
// filters as ListAppointments.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, filter model.AppointmentFilter) ([]*model.Appointment, int, error) {
	exists, err := s.store.Patients().Exists(ctx, patientID)
	if err != nil {
		return nil, 0, apperrors.Internal("failed to get patient appointments", err)
	}
	if !exists {
		return nil, 0, apperrors.NotFound(MsgPatientNotFound, nil)
	}

	filter.PatientID = &patientID
	filter.Pagination = filter.Pagination.Normalize()
	appointments, total, err := s.store.Appointments().List(ctx, filter)
	if err != nil {
		return nil, 0, s.translate(err, "failed to get patient appointments")
	}
	return appointments, total, nil
}

// UpdateAppointment applies a partial update. Slot conflicts are re-checked
// only when the request supplies doctor_name or date_time. Status is applied
// as given with no transition rules.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, req *model.UpdateAppointmentRequest) (updated *model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointment.update", trace.WithAttributes(attribute.String("appointment.id", id.String())))
	defer func() { s.finish(span, "update", err) }()

	req.Trim()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		apt, err := tx.Appointments().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if fields := s.validate.Validate(req); fields != nil {
			return apperrors.Validation(fields)
		}
		patch, err := toPatch(req)
		if err != nil {
			return err
		}

		if patch.TouchesSlot() {
			doctor, at := patch.Effective(apt)
			slot := Slot{PatientID: apt.PatientID, DoctorName: doctor, DateTime: at, Exclude: &apt.ID}
			if err := s.ensureFree(ctx, tx, slot); err != nil {
				return err
			}
		}

		patch.Apply(apt)
		apt.UpdatedAt = s.validate.Now().UTC()
		if err := tx.Appointments().Update(ctx, apt); err != nil {
			return err
		}
		updated = apt
		return s.events.Emit(ctx, tx.Outbox(), model.EventAppointmentUpdated, apt.ID, apt)
	})
	if err != nil {
		return nil, s.translate(err, "failed to update appointment")
	}
	return updated, nil
}

// CancelAppointment moves an appointment to cancelled. Cancelling twice is a conflict.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (cancelled *model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointment.cancel", trace.WithAttributes(attribute.String("appointment.id", id.String())))
	defer func() { s.finish(span, "cancel", err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		apt, err := tx.Appointments().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if apt.Status == model.AppointmentStatusCancelled {
			return apperrors.Conflict(MsgAlreadyCancelled, nil)
		}

		apt.Status = model.AppointmentStatusCancelled
		apt.UpdatedAt = s.validate.Now().UTC()
		if err := tx.Appointments().Update(ctx, apt); err != nil {
			return err
		}
		cancelled = apt
		return s.events.Emit(ctx, tx.Outbox(), model.EventAppointmentCancelled, apt.ID, apt)
	})
	if err != nil {
		return nil, s.translate(err, "failed to cancel appointment")
	}
	return cancelled, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := s.tracer.Start(ctx, "appointment.delete", trace.WithAttributes(attribute.String("appointment.id", id.String())))
	defer func() { s.finish(span, "delete", err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		apt, err := tx.Appointments().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Appointments().Delete(ctx, id); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx.Outbox(), model.EventAppointmentDeleted, apt.ID, apt)
	})
	if err != nil {
		return s.translate(err, "failed to delete appointment")
	}
	return nil
}

func (s *Service) ensureFree(ctx context.Context, tx repository.Store, slot Slot) error {
	kind, err := s.checker.Check(ctx, tx.Appointments(), slot)
	if err != nil {
		return err
	}
	if kind == ConflictNone {
		return nil
	}
	s.countConflict(kind, "check")
	return apperrors.Conflict(kind.Message(), nil)
}

// translate maps store errors onto the booking error kinds. Unique
// violations that slipped past the pre-check surface as the same conflict.
func (s *Service) translate(err error, internalMsg string) error {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}

	switch {
	case errors.Is(err, repository.ErrPatientSlotTaken):
		s.countConflict(ConflictPatient, "constraint")
		return apperrors.Conflict(MsgPatientConflict, err)
	case errors.Is(err, repository.ErrDoctorSlotTaken):
		s.countConflict(ConflictDoctor, "constraint")
		return apperrors.Conflict(MsgDoctorConflict, err)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(MsgNotFound, err)
	case errors.Is(err, repository.ErrPatientMissing):
		return apperrors.Validation(apperrors.Fields{"patient_id": {msgInvalidPatient}})
	}
	return apperrors.Internal(internalMsg, err)
}

func (s *Service) countConflict(kind ConflictKind, layer string) {
	if s.metrics != nil {
		s.metrics.BookingConflicts.WithLabelValues(kind.String(), layer).Inc()
	}
}

func (s *Service) finish(span trace.Span, op string, err error) {
	defer span.End()

	outcome := outcomeOf(err)
	if s.metrics != nil {
		s.metrics.BookingOperations.WithLabelValues(op, outcome).Inc()
	}
	span.SetAttributes(attribute.String("booking.outcome", outcome))
	if outcome == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	switch apperrors.CodeOf(err) {
	case apperrors.ErrValidation:
		return "invalid"
	case apperrors.ErrNotFound:
		return "not_found"
	case apperrors.ErrConflict:
		return "conflict"
	default:
		return "error"
	}
}

func toPatch(req *model.UpdateAppointmentRequest) (model.AppointmentPatch, error) {
	patch := model.AppointmentPatch{
		DoctorName:     req.DoctorName,
		Specialization: req.Specialization,
	}
	if req.DateTime != nil {
		at, err := validator.ParseTimestamp(*req.DateTime)
		if err != nil {
			return patch, err
		}
		patch.DateTime = &at
	}
	if req.Status != nil {
		status := model.AppointmentStatus(*req.Status)
		patch.Status = &status
	}
	return patch, nil
}
