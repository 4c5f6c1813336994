package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type patientRepository struct {
	h handle
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	return r.h.with(ctx, func(st *state) error {
		st.patients[patient.ID] = *patient
		return nil
	})
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var out *model.Patient
	err := r.h.with(ctx, func(st *state) error {
		p, ok := st.patients[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *patientRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.h.with(ctx, func(st *state) error {
		_, exists = st.patients[id]
		return nil
	})
	return exists, err
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	return r.h.with(ctx, func(st *state) error {
		if _, ok := st.patients[patient.ID]; !ok {
			return repository.ErrNotFound
		}
		st.patients[patient.ID] = *patient
		return nil
	})
}

func (r *patientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.h.with(ctx, func(st *state) error {
		if _, ok := st.patients[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.patients, id)
		for aid, a := range st.appointments {
			if a.PatientID == id {
				delete(st.appointments, aid)
			}
		}
		return nil
	})
}

func (r *patientRepository) List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, int, error) {
	var (
		out   []*model.Patient
		total int
	)
	err := r.h.with(ctx, func(st *state) error {
		search := strings.ToLower(strings.TrimSpace(filter.Search))
		matched := make([]*model.Patient, 0, len(st.patients))
		for _, p := range st.patients {
			if search != "" &&
				!strings.Contains(strings.ToLower(p.FirstName), search) &&
				!strings.Contains(strings.ToLower(p.LastName), search) {
				continue
			}
			p := p
			matched = append(matched, &p)
		}

		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			}
			return matched[i].ID.String() > matched[j].ID.String()
		})

		total = len(matched)
		out = window(matched, filter.Pagination)
		return nil
	})
	return out, total, err
}

func window[T any](items []T, p model.Pagination) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
