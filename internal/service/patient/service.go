package patient

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/cache"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/event"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

const MsgNotFound = "patient not found"

type PatientService interface {
	CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	UpdatePatient(ctx context.Context, id uuid.UUID, req *model.UpdatePatientRequest) (*model.Patient, error)
	DeletePatient(ctx context.Context, id uuid.UUID) error
	ListPatients(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, int, error)
}

type Service struct {
	store    repository.Store
	validate *validator.Validator
	events   event.Emitter
	cache    cache.Cache
	metrics  *metrics.Metrics
}

// NewService builds the patient service. A nil cache reads every patient
// from the store.
func NewService(store repository.Store, validate *validator.Validator, events event.Emitter, c cache.Cache, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		validate: validate,
		events:   events,
		cache:    c,
		metrics:  m,
	}
}

func (s *Service) CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	req.Trim()
	if fields := s.validate.Validate(req); fields != nil {
		return nil, apperrors.Validation(fields)
	}

	birthDate, err := validator.ParseDate(req.BirthDate)
	if err != nil {
		return nil, apperrors.Internal("failed to create patient", err)
	}

	now := s.validate.Now().UTC()
	patient := &model.Patient{
		Base:      model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		FirstName: req.FirstName,
		LastName:  req.LastName,
		BirthDate: model.Date{Time: birthDate},
		Gender:    model.Gender(req.Gender),
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Patients().Create(ctx, patient); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx.Outbox(), model.EventPatientCreated, patient.ID, patient)
	})
	if err != nil {
		return nil, translate(err, "failed to create patient")
	}
	return patient, nil
}

// GetPatient serves from the shared cache when one is configured. Callers
// get their own copy.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	if s.cache == nil {
		return s.loadPatient(ctx, id)
	}

	key := id.String()
	if raw, ok := s.cache.Get(ctx, key); ok {
		var p model.Patient
		if err := json.Unmarshal(raw, &p); err == nil {
			s.countLookup("hit")
			return &p, nil
		}
	}
	s.countLookup("miss")

	var patient *model.Patient
	_, err := s.cache.Fill(ctx, key, func(ctx context.Context) ([]byte, error) {
		p, err := s.loadPatient(ctx, id)
		if err != nil {
			return nil, err
		}
		patient = p
		return json.Marshal(p)
	})
	if err != nil {
		return nil, err
	}
	return patient, nil
}

func (s *Service) loadPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.store.Patients().Get(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to get patient")
	}
	return patient, nil
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, req *model.UpdatePatientRequest) (updated *model.Patient, err error) {
	req.Trim()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		patient, err := tx.Patients().Get(ctx, id)
		if err != nil {
			return err
		}
		if fields := s.validate.Validate(req); fields != nil {
			return apperrors.Validation(fields)
		}

		if req.FirstName != nil {
			patient.FirstName = *req.FirstName
		}
		if req.LastName != nil {
			patient.LastName = *req.LastName
		}
		if req.BirthDate != nil {
			d, err := validator.ParseDate(*req.BirthDate)
			if err != nil {
				return err
			}
			patient.BirthDate = model.Date{Time: d}
		}
		if req.Gender != nil {
			patient.Gender = model.Gender(*req.Gender)
		}
		patient.UpdatedAt = s.validate.Now().UTC()

		if err := tx.Patients().Update(ctx, patient); err != nil {
			return err
		}
		updated = patient
		return s.events.Emit(ctx, tx.Outbox(), model.EventPatientUpdated, patient.ID, patient)
	})
	if err != nil {
		return nil, translate(err, "failed to update patient")
	}
	s.invalidate(ctx, id)
	return updated, nil
}

// DeletePatient removes the patient together with every appointment it owns.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	var removed int
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if _, err := tx.Patients().Get(ctx, id); err != nil {
			return err
		}
		count, err := tx.Appointments().CountByPatient(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Patients().Delete(ctx, id); err != nil {
			return err
		}
		removed = count
		payload := model.PatientDeletedPayload{PatientID: id, AppointmentsRemoved: count}
		return s.events.Emit(ctx, tx.Outbox(), model.EventPatientDeleted, id, payload)
	})
	if err != nil {
		return translate(err, "failed to delete patient")
	}
	s.invalidate(ctx, id)

	log.Ctx(ctx).Info().
		Str("patient_id", id.String()).
		Int("appointments_removed", removed).
		Msg("patient deleted")
	return nil
}

func (s *Service) ListPatients(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, int, error) {
	filter.Pagination = filter.Pagination.Normalize()
	patients, total, err := s.store.Patients().List(ctx, filter)
	if err != nil {
		return nil, 0, translate(err, "failed to get patients")
	}
	return patients, total, nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id.String()); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("patient_id", id.String()).Msg("failed to invalidate cached patient")
	}
}

func (s *Service) countLookup(result string) {
	if s.metrics != nil {
		s.metrics.PatientCacheHits.WithLabelValues(result).Inc()
	}
}

func translate(err error, internalMsg string) error {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(MsgNotFound, err)
	}
	return apperrors.Internal(internalMsg, err)
}
