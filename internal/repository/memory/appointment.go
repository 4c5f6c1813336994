package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type appointmentRepository struct {
	h handle
}

// checkConstraints mirrors the foreign key and the two unique slot
// constraints of the appointments table.
func checkConstraints(st *state, a *model.Appointment) error {
	if _, ok := st.patients[a.PatientID]; !ok {
		return repository.ErrPatientMissing
	}
	doctorTaken := false
	for id, other := range st.appointments {
		if id == a.ID || !other.DateTime.Equal(a.DateTime) {
			continue
		}
		if other.PatientID == a.PatientID {
			return repository.ErrPatientSlotTaken
		}
		if other.DoctorName == a.DoctorName {
			doctorTaken = true
		}
	}
	if doctorTaken {
		return repository.ErrDoctorSlotTaken
	}
	return nil
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	return r.h.with(ctx, func(st *state) error {
		if err := checkConstraints(st, appointment); err != nil {
			return err
		}
		stored := *appointment
		stored.Patient = nil
		st.appointments[appointment.ID] = stored
		return nil
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var out *model.Appointment
	err := r.h.with(ctx, func(st *state) error {
		a, ok := st.appointments[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = withPatient(st, a)
		return nil
	})
	return out, err
}

func (r *appointmentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var out *model.Appointment
	err := r.h.with(ctx, func(st *state) error {
		a, ok := st.appointments[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	return r.h.with(ctx, func(st *state) error {
		if _, ok := st.appointments[appointment.ID]; !ok {
			return repository.ErrNotFound
		}
		if err := checkConstraints(st, appointment); err != nil {
			return err
		}
		stored := *appointment
		stored.Patient = nil
		st.appointments[appointment.ID] = stored
		return nil
	})
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.h.with(ctx, func(st *state) error {
		if _, ok := st.appointments[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.appointments, id)
		return nil
	})
}

func (r *appointmentRepository) List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, int, error) {
	var (
		out   []*model.Appointment
		total int
	)
	err := r.h.with(ctx, func(st *state) error {
		doctor := strings.ToLower(strings.TrimSpace(filter.DoctorName))
		spec := strings.ToLower(strings.TrimSpace(filter.Specialization))

		matched := make([]*model.Appointment, 0, len(st.appointments))
		for _, a := range st.appointments {
			if filter.PatientID != nil && a.PatientID != *filter.PatientID {
				continue
			}
			if doctor != "" && !strings.Contains(strings.ToLower(a.DoctorName), doctor) {
				continue
			}
			if spec != "" && !strings.Contains(strings.ToLower(a.Specialization), spec) {
				continue
			}
			matched = append(matched, withPatient(st, a))
		}

		desc := filter.Order == model.SortDesc
		sort.Slice(matched, func(i, j int) bool {
			a, b := matched[i], matched[j]
			if !a.DateTime.Equal(b.DateTime) {
				if desc {
					return a.DateTime.After(b.DateTime)
				}
				return a.DateTime.Before(b.DateTime)
			}
			if desc {
				return a.ID.String() > b.ID.String()
			}
			return a.ID.String() < b.ID.String()
		})

		total = len(matched)
		out = window(matched, filter.Pagination)
		return nil
	})
	return out, total, err
}

func (r *appointmentRepository) CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	var count int
	err := r.h.with(ctx, func(st *state) error {
		for _, a := range st.appointments {
			if a.PatientID == patientID {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *appointmentRepository) PatientSlotTaken(ctx context.Context, patientID uuid.UUID, at time.Time, exclude *uuid.UUID) (bool, error) {
	return r.slotTaken(ctx, at, exclude, func(a model.Appointment) bool {
		return a.PatientID == patientID
	})
}

func (r *appointmentRepository) DoctorSlotTaken(ctx context.Context, doctorName string, at time.Time, exclude *uuid.UUID) (bool, error) {
	return r.slotTaken(ctx, at, exclude, func(a model.Appointment) bool {
		return a.DoctorName == doctorName
	})
}

func (r *appointmentRepository) slotTaken(ctx context.Context, at time.Time, exclude *uuid.UUID, match func(model.Appointment) bool) (bool, error) {
	var taken bool
	err := r.h.with(ctx, func(st *state) error {
		for id, a := range st.appointments {
			if exclude != nil && id == *exclude {
				continue
			}
			if a.DateTime.Equal(at) && match(a) {
				taken = true
				return nil
			}
		}
		return nil
	})
	return taken, err
}

func withPatient(st *state, a model.Appointment) *model.Appointment {
	if p, ok := st.patients[a.PatientID]; ok {
		a.Patient = p.Summary()
	}
	return &a
}
