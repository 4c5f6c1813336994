// Package memory is an in-process repository.Store. It enforces the same
// slot uniqueness, foreign key and cascade rules as the Postgres schema and
// serializes transactions behind a single lock.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type state struct {
	patients     map[uuid.UUID]model.Patient
	appointments map[uuid.UUID]model.Appointment
	outbox       map[uuid.UUID]model.OutboxEvent
}

func newState() *state {
	return &state{
		patients:     map[uuid.UUID]model.Patient{},
		appointments: map[uuid.UUID]model.Appointment{},
		outbox:       map[uuid.UUID]model.OutboxEvent{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	return c
}

type Store struct {
	mu   sync.Mutex
	data *state
}

func NewStore() *Store {
	return &Store{data: newState()}
}

func (s *Store) Patients() repository.PatientRepository {
	return &patientRepository{h: handle{store: s}}
}

func (s *Store) Appointments() repository.AppointmentRepository {
	return &appointmentRepository{h: handle{store: s}}
}

func (s *Store) Outbox() repository.OutboxRepository {
	return &outboxRepository{h: handle{store: s}}
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// WithinTx holds the store lock for the whole of fn and restores the
// previous state if fn fails or panics.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(ctx, &txStore{store: s})
}

// txStore is a Store view used inside WithinTx; the lock is already held.
type txStore struct {
	store *Store
}

func (t *txStore) Patients() repository.PatientRepository {
	return &patientRepository{h: handle{store: t.store, inTx: true}}
}

func (t *txStore) Appointments() repository.AppointmentRepository {
	return &appointmentRepository{h: handle{store: t.store, inTx: true}}
}

func (t *txStore) Outbox() repository.OutboxRepository {
	return &outboxRepository{h: handle{store: t.store, inTx: true}}
}

func (t *txStore) Ping(context.Context) error {
	return nil
}

func (t *txStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return fn(ctx, t)
}

type handle struct {
	store *Store
	inTx  bool
}

// with runs fn against the current state, taking the lock unless a
// transaction already holds it.
func (h handle) with(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !h.inTx {
		h.store.mu.Lock()
		defer h.store.mu.Unlock()
	}
	return fn(h.store.data)
}
