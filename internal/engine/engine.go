// Package engine exposes the booking operations: availability listing,
// booking commit, lifecycle transitions, and policy pre-checks. It owns
// the conflict guard that makes slot assignment safe under concurrent
// writers.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/slotwise/slotwise/internal/availability"
	"github.com/slotwise/slotwise/internal/lifecycle"
	"github.com/slotwise/slotwise/internal/model"
	"github.com/slotwise/slotwise/internal/policy"
)

// Store is the persistence port for read paths and transaction entry.
type Store interface {
	Business(ctx context.Context, id string) (model.Business, error)
	Schedule(ctx context.Context, businessID string) (model.AvailabilitySchedule, error)
	Appointment(ctx context.Context, businessID, id string) (model.Appointment, error)
	// ActiveAppointments returns active, non-deleted appointments whose
	// scheduled_at falls in [from, to).
	ActiveAppointments(ctx context.Context, businessID string, from, to time.Time) ([]model.Appointment, error)
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one storage transaction. LockSlotDay acquires the exclusive
// per-business-per-day advisory lock; it is transaction-scoped, cooperative
// (only effective against writers that also acquire it), and not a
// distributed lock across storage backends.
type Tx interface {
	LockSlotDay(ctx context.Context, businessID string, day time.Time) error
	AppointmentForUpdate(ctx context.Context, businessID, id string) (model.Appointment, error)
	// ActiveOverlapping returns active, non-deleted appointments whose
	// occupied interval intersects [start, end), optionally excluding one
	// appointment id.
	ActiveOverlapping(ctx context.Context, businessID string, start, end time.Time, excludeID string) ([]model.Appointment, error)
	InsertAppointment(ctx context.Context, appt *model.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, appt model.Appointment) error
	UpdateAppointmentSchedule(ctx context.Context, appt model.Appointment) error
	SoftDeleteAppointment(ctx context.Context, businessID, id string, at time.Time) error
	InsertEvent(ctx context.Context, eventType, aggregateID string, payload []byte) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Engine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type businessContext struct {
	business model.Business
	schedule model.AvailabilitySchedule
	loc      *time.Location
}

func (e *Engine) loadBusiness(ctx context.Context, businessID string) (businessContext, error) {
	biz, err := e.store.Business(ctx, businessID)
	if err != nil {
		return businessContext{}, err
	}
	sched, err := e.store.Schedule(ctx, businessID)
	if err != nil {
		return businessContext{}, err
	}
	loc, err := sched.Location(biz.Timezone)
	if err != nil {
		return businessContext{}, fmt.Errorf("resolve timezone for business %s: %w", businessID, err)
	}
	return businessContext{business: biz, schedule: sched, loc: loc}, nil
}

func (e *Engine) checker(bc businessContext, now time.Time) policy.Checker {
	return policy.Checker{Business: bc.business, Loc: bc.loc, Now: now}
}

// ListAvailableSlots returns offerable slot starts for [from, to] (civil
// dates, inclusive), at most limit of them before occupancy filtering.
// Read-only and side-effect-free.
func (e *Engine) ListAvailableSlots(ctx context.Context, businessID string, from, to time.Time, limit int) ([]time.Time, error) {
	bc, err := e.loadBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	gen := availability.Generator{
		Schedule:     bc.schedule,
		Loc:          bc.loc,
		SlotDuration: bc.business.SlotDuration(),
		Policy: availability.Policy{
			MinLeadHours:   bc.business.Policy.MinLeadHours,
			MaxAdvanceDays: bc.business.Policy.MaxAdvanceDays,
		},
		Now: e.now(),
	}
	candidates := gen.Slots(from, to, limit)
	if len(candidates) == 0 {
		return nil, nil
	}

	fy, fm, fd := model.CivilDate(from).Date()
	ty, tm, td := model.CivilDate(to).Date()
	rangeStart := time.Date(fy, fm, fd, 0, 0, 0, 0, bc.loc)
	rangeEnd := time.Date(ty, tm, td, 0, 0, 0, 0, bc.loc).AddDate(0, 0, 1)

	booked, err := e.store.ActiveAppointments(ctx, businessID, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	return availability.ExcludeBooked(candidates, booked, bc.business.SlotDuration(), bc.loc), nil
}

type CommitRequest struct {
	BusinessID   string
	CustomerID   string
	ScheduledAt  time.Time
	DurationMins int // defaults to the business slot duration
}

// CommitBooking is the only write path that may allocate a slot. Inside
// the transaction it serializes on the per-business-per-day advisory lock,
// re-checks interval overlap among active appointments, and relies on the
// partial unique index as a last-resort backstop for identical-timestamp
// inserts from writers that bypass the lock.
func (e *Engine) CommitBooking(ctx context.Context, req CommitRequest) (model.Appointment, error) {
	bc, err := e.loadBusiness(ctx, req.BusinessID)
	if err != nil {
		return model.Appointment{}, err
	}
	now := e.now()

	duration := req.DurationMins
	if duration <= 0 {
		duration = bc.business.SlotDurationMins
	}
	if !e.checker(bc, now).SlotRequestable(req.ScheduledAt) {
		return model.Appointment{}, model.NewError(model.CodeSlotNotRequestable, "requested time is outside the bookable window")
	}

	appt := model.Appointment{
		ID:           uuid.NewString(),
		BusinessID:   req.BusinessID,
		CustomerID:   req.CustomerID,
		ScheduledAt:  req.ScheduledAt,
		DurationMins: duration,
		Status:       model.StatusPending,
		RequestedAt:  now,
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.LockSlotDay(ctx, req.BusinessID, model.CivilDate(req.ScheduledAt.In(bc.loc))); err != nil {
		return model.Appointment{}, err
	}

	conflicting, err := tx.ActiveOverlapping(ctx, req.BusinessID, appt.ScheduledAt, appt.EndsAt(), "")
	if err != nil {
		return model.Appointment{}, err
	}
	if len(conflicting) > 0 {
		return model.Appointment{}, model.NewError(model.CodeSlotConflict, "slot is already occupied")
	}

	if err := tx.InsertAppointment(ctx, &appt); err != nil {
		// The storage layer translates unique-index violations already.
		return model.Appointment{}, err
	}
	if err := e.emitEvent(ctx, tx, "booking.appointment.booked.v1", appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// TransitionAppointment applies one status transition. finishedAtRaw is
// only consulted for transitions to finished; it is parsed in the business
// timezone and degrades to now when absent or unparseable.
func (e *Engine) TransitionAppointment(ctx context.Context, businessID, appointmentID string, to model.Status, actor model.Actor, finishedAtRaw string) (model.Appointment, error) {
	bc, err := e.loadBusiness(ctx, businessID)
	if err != nil {
		return model.Appointment{}, err
	}
	now := e.now()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := tx.AppointmentForUpdate(ctx, businessID, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := lifecycle.Check(appt, to, now); err != nil {
		return model.Appointment{}, err
	}
	if to == model.StatusCancelled && !e.checker(bc, now).CancellationAllowed(appt.ScheduledAt, actor) {
		return model.Appointment{}, model.NewError(model.CodeCancellationBlocked, "cancellation notice window has passed")
	}

	appt.Status = to
	if to == model.StatusFinished {
		finishedAt := lifecycle.ParseFinishedAt(finishedAtRaw, bc.loc, now)
		appt.FinishedAt = &finishedAt
	}
	if err := tx.UpdateAppointmentStatus(ctx, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := e.emitEvent(ctx, tx, fmt.Sprintf("booking.appointment.%s.v1", to), appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// RescheduleAppointment moves a confirmed appointment to a new start time.
// An appointment may be rescheduled at most once while in flight; after
// that the caller must cancel and rebook. The new slot passes the same
// policy and conflict guard as a fresh booking, with the overlap query
// excluding the appointment being moved.
func (e *Engine) RescheduleAppointment(ctx context.Context, businessID, appointmentID string, newStart time.Time, actor model.Actor) (model.Appointment, error) {
	bc, err := e.loadBusiness(ctx, businessID)
	if err != nil {
		return model.Appointment{}, err
	}
	now := e.now()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.LockSlotDay(ctx, businessID, model.CivilDate(newStart.In(bc.loc))); err != nil {
		return model.Appointment{}, err
	}
	appt, err := tx.AppointmentForUpdate(ctx, businessID, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := lifecycle.Check(appt, model.StatusRescheduled, now); err != nil {
		return model.Appointment{}, err
	}
	if appt.RescheduledFrom != nil {
		return model.Appointment{}, model.NewError(model.CodeAlreadyRescheduled, "appointment was already rescheduled once; cancel and rebook")
	}
	chk := e.checker(bc, now)
	if !chk.RescheduleAllowed(appt.ScheduledAt, actor) {
		return model.Appointment{}, model.NewError(model.CodeRescheduleBlocked, "reschedule notice window has passed")
	}
	if !chk.SlotRequestable(newStart) {
		return model.Appointment{}, model.NewError(model.CodeSlotNotRequestable, "new time is outside the bookable window")
	}

	conflicting, err := tx.ActiveOverlapping(ctx, businessID, newStart, newStart.Add(appt.Duration()), appt.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(conflicting) > 0 {
		return model.Appointment{}, model.NewError(model.CodeSlotConflict, "slot is already occupied")
	}

	previous := appt.ScheduledAt
	appt.RescheduledFrom = &previous
	appt.ScheduledAt = newStart
	appt.Status = model.StatusRescheduled
	if err := tx.UpdateAppointmentSchedule(ctx, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := e.emitEvent(ctx, tx, "booking.appointment.rescheduled.v1", appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// DeleteAppointment soft-deletes an appointment. Rows are never removed;
// the deletion marker drops them out of the active-occupancy predicate.
func (e *Engine) DeleteAppointment(ctx context.Context, businessID, appointmentID string) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SoftDeleteAppointment(ctx, businessID, appointmentID, e.now()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CheckCancellation pre-validates a cancellation for calling UIs.
func (e *Engine) CheckCancellation(ctx context.Context, businessID, appointmentID string, actor model.Actor) (bool, error) {
	bc, err := e.loadBusiness(ctx, businessID)
	if err != nil {
		return false, err
	}
	appt, err := e.store.Appointment(ctx, businessID, appointmentID)
	if err != nil {
		return false, err
	}
	return e.checker(bc, e.now()).CancellationAllowed(appt.ScheduledAt, actor), nil
}

// CheckReschedule pre-validates a reschedule for calling UIs.
func (e *Engine) CheckReschedule(ctx context.Context, businessID, appointmentID string, actor model.Actor) (bool, error) {
	bc, err := e.loadBusiness(ctx, businessID)
	if err != nil {
		return false, err
	}
	appt, err := e.store.Appointment(ctx, businessID, appointmentID)
	if err != nil {
		return false, err
	}
	if appt.RescheduledFrom != nil {
		return false, nil
	}
	return e.checker(bc, e.now()).RescheduleAllowed(appt.ScheduledAt, actor), nil
}

// CheckSlotRequest pre-validates a candidate booking time for calling UIs.
func (e *Engine) CheckSlotRequest(ctx context.Context, businessID string, candidate time.Time) (bool, error) {
	bc, err := e.loadBusiness(ctx, businessID)
	if err != nil {
		return false, err
	}
	return e.checker(bc, e.now()).SlotRequestable(candidate), nil
}

func (e *Engine) emitEvent(ctx context.Context, tx Tx, eventType string, appt model.Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"business_id":    appt.BusinessID,
		"customer_id":    appt.CustomerID,
		"scheduled_at":   appt.ScheduledAt.UTC().Format(time.RFC3339),
		"duration_mins":  appt.DurationMins,
		"status":         appt.Status,
	})
	if err != nil {
		return err
	}
	return tx.InsertEvent(ctx, eventType, appt.ID, payload)
}
