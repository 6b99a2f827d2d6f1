// Package testfixtures provides an in-memory implementation of the engine
// persistence ports plus a controllable clock. The store honors the same
// contracts as the Postgres layer: a per-business-per-day exclusive lock
// held for the transaction's lifetime, the active/non-deleted occupancy
// predicate, and a commit-time uniqueness backstop on exact start times.
package testfixtures

import (
	"context"
	"sync"
	"time"

	"github.com/slotwise/slotwise/internal/engine"
	"github.com/slotwise/slotwise/internal/model"
)

type StoredEvent struct {
	EventType   string
	AggregateID string
	Payload     []byte
}

type Store struct {
	mu           sync.Mutex
	businesses   map[string]model.Business
	schedules    map[string]model.AvailabilitySchedule
	appointments map[string]model.Appointment
	events       []StoredEvent
	dayLocks     map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		businesses:   map[string]model.Business{},
		schedules:    map[string]model.AvailabilitySchedule{},
		appointments: map[string]model.Appointment{},
		dayLocks:     map[string]*sync.Mutex{},
	}
}

var _ engine.Store = (*Store)(nil)

func (s *Store) SeedBusiness(b model.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = b
}

func (s *Store) SeedSchedule(sched model.AvailabilitySchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.BusinessID] = sched
}

func (s *Store) SeedAppointment(appt model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments[appt.ID] = appt
}

func (s *Store) StoredAppointment(id string) (model.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	return appt, ok
}

func (s *Store) Events() []StoredEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoredEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) Business(_ context.Context, id string) (model.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return model.Business{}, model.NewError(model.CodeNotFound, "business %s not found", id)
	}
	return b, nil
}

func (s *Store) Schedule(_ context.Context, businessID string) (model.AvailabilitySchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[businessID]
	if !ok {
		return model.AvailabilitySchedule{BusinessID: businessID}, nil
	}
	return sched, nil
}

func (s *Store) Appointment(_ context.Context, businessID, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok || appt.BusinessID != businessID || appt.DeletedAt != nil {
		return model.Appointment{}, model.NewError(model.CodeNotFound, "appointment %s not found", id)
	}
	return appt, nil
}

func (s *Store) ActiveAppointments(_ context.Context, businessID string, from, to time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, appt := range s.appointments {
		if appt.BusinessID != businessID || !appt.Status.Active() || appt.DeletedAt != nil {
			continue
		}
		if appt.ScheduledAt.Before(from) || !appt.ScheduledAt.Before(to) {
			continue
		}
		out = append(out, appt)
	}
	return out, nil
}

func (s *Store) Begin(_ context.Context) (engine.Tx, error) {
	return &memTx{store: s}, nil
}

func (s *Store) dayLock(businessID string, day time.Time) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := businessID + "|" + day.Format("2006-01-02")
	mu, ok := s.dayLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.dayLocks[key] = mu
	}
	return mu
}

type memTx struct {
	store    *Store
	held     []*sync.Mutex
	inserted []model.Appointment
	updated  []model.Appointment
	deleted  map[string]time.Time
	events   []StoredEvent
	done     bool
}

var _ engine.Tx = (*memTx)(nil)

func (t *memTx) LockSlotDay(_ context.Context, businessID string, day time.Time) error {
	mu := t.store.dayLock(businessID, day)
	mu.Lock()
	t.held = append(t.held, mu)
	return nil
}

func (t *memTx) AppointmentForUpdate(ctx context.Context, businessID, id string) (model.Appointment, error) {
	return t.store.Appointment(ctx, businessID, id)
}

func (t *memTx) ActiveOverlapping(_ context.Context, businessID string, start, end time.Time, excludeID string) ([]model.Appointment, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []model.Appointment
	for _, appt := range t.store.appointments {
		if appt.BusinessID != businessID || !appt.Status.Active() || appt.DeletedAt != nil {
			continue
		}
		if appt.ID == excludeID {
			continue
		}
		if appt.ScheduledAt.Before(end) && appt.EndsAt().After(start) {
			out = append(out, appt)
		}
	}
	return out, nil
}

func (t *memTx) InsertAppointment(_ context.Context, appt *model.Appointment) error {
	t.inserted = append(t.inserted, *appt)
	return nil
}

func (t *memTx) UpdateAppointmentStatus(_ context.Context, appt model.Appointment) error {
	t.updated = append(t.updated, appt)
	return nil
}

func (t *memTx) UpdateAppointmentSchedule(_ context.Context, appt model.Appointment) error {
	t.updated = append(t.updated, appt)
	return nil
}

func (t *memTx) SoftDeleteAppointment(_ context.Context, businessID, id string, at time.Time) error {
	if _, err := t.store.Appointment(context.Background(), businessID, id); err != nil {
		return err
	}
	if t.deleted == nil {
		t.deleted = map[string]time.Time{}
	}
	t.deleted[id] = at
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, eventType, aggregateID string, payload []byte) error {
	t.events = append(t.events, StoredEvent{EventType: eventType, AggregateID: aggregateID, Payload: payload})
	return nil
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	// Uniqueness backstop: identical active start times fail the commit,
	// like the partial unique index would.
	for _, appt := range t.inserted {
		for _, existing := range t.store.appointments {
			if existing.BusinessID == appt.BusinessID && existing.Status.Active() &&
				existing.DeletedAt == nil && existing.ScheduledAt.Equal(appt.ScheduledAt) {
				t.store.mu.Unlock()
				t.release()
				return model.NewError(model.CodeSlotConflict, "slot is already occupied")
			}
		}
	}
	for _, appt := range t.inserted {
		t.store.appointments[appt.ID] = appt
	}
	for _, appt := range t.updated {
		t.store.appointments[appt.ID] = appt
	}
	for id, at := range t.deleted {
		appt := t.store.appointments[id]
		deletedAt := at
		appt.DeletedAt = &deletedAt
		t.store.appointments[id] = appt
	}
	t.store.events = append(t.store.events, t.events...)
	t.store.mu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func (t *memTx) release() {
	t.done = true
	for _, mu := range t.held {
		mu.Unlock()
	}
	t.held = nil
}
