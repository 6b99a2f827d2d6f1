// Package storage implements the engine's persistence ports on Postgres.
package storage

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/slotwise/slotwise/internal/engine"
	"github.com/slotwise/slotwise/internal/model"
	"github.com/slotwise/slotwise/internal/outbox"
	"github.com/slotwise/slotwise/libs/db"
)

const apptColumns = `id::text, business_id::text, COALESCE(customer_id::text, ''),
	scheduled_at, duration_minutes, status, requested_at, finished_at,
	rescheduled_from, deleted_at, created_at`

type Repository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outboxRepo: outboxRepo}
}

var _ engine.Store = (*Repository)(nil)

func (r *Repository) Business(ctx context.Context, id string) (model.Business, error) {
	var b model.Business
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, COALESCE(owner_id::text, ''), name, timezone, slot_duration_minutes,
			cancellation_notice_hours, reschedule_notice_hours, max_advance_days, min_lead_hours
		FROM businesses
		WHERE id = $1
	`, id).Scan(
		&b.ID,
		&b.OwnerID,
		&b.Name,
		&b.Timezone,
		&b.SlotDurationMins,
		&b.Policy.CancellationNoticeHours,
		&b.Policy.RescheduleNoticeHours,
		&b.Policy.MaxAdvanceDays,
		&b.Policy.MinLeadHours,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Business{}, model.NewError(model.CodeNotFound, "business %s not found", id)
	}
	return b, err
}

// Schedule loads the business's schedule with its windows and exceptions.
// A business with no schedule row resolves to an empty schedule, which
// yields zero open ranges everywhere downstream.
func (r *Repository) Schedule(ctx context.Context, businessID string) (model.AvailabilitySchedule, error) {
	var s model.AvailabilitySchedule
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, timezone
		FROM availability_schedules
		WHERE business_id = $1
	`, businessID).Scan(&s.ID, &s.BusinessID, &s.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AvailabilitySchedule{BusinessID: businessID}, nil
	}
	if err != nil {
		return model.AvailabilitySchedule{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id::text, schedule_id::text, weekday, opens_minute, closes_minute
		FROM availability_windows
		WHERE schedule_id = $1
		ORDER BY weekday, opens_minute
	`, s.ID)
	if err != nil {
		return model.AvailabilitySchedule{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var w model.AvailabilityWindow
		var weekday int
		if err := rows.Scan(&w.ID, &w.ScheduleID, &weekday, &w.OpensMinute, &w.ClosesMinute); err != nil {
			return model.AvailabilitySchedule{}, err
		}
		w.Weekday = time.Weekday(weekday)
		s.Windows = append(s.Windows, w)
	}
	if rows.Err() != nil {
		return model.AvailabilitySchedule{}, rows.Err()
	}

	excRows, err := r.pool.Query(ctx, `
		SELECT id::text, schedule_id::text, starts_on, ends_on, kind, opens_minute, closes_minute
		FROM availability_exceptions
		WHERE schedule_id = $1
		ORDER BY starts_on
	`, s.ID)
	if err != nil {
		return model.AvailabilitySchedule{}, err
	}
	defer excRows.Close()
	for excRows.Next() {
		var e model.AvailabilityException
		var kind string
		if err := excRows.Scan(&e.ID, &e.ScheduleID, &e.StartsOn, &e.EndsOn, &kind, &e.OpensMinute, &e.ClosesMinute); err != nil {
			return model.AvailabilitySchedule{}, err
		}
		e.Kind = model.ExceptionKind(kind)
		s.Exceptions = append(s.Exceptions, e)
	}
	if excRows.Err() != nil {
		return model.AvailabilitySchedule{}, excRows.Err()
	}
	return s, nil
}

func (r *Repository) Appointment(ctx context.Context, businessID, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1 AND business_id = $2 AND deleted_at IS NULL
	`, id, businessID)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, model.NewError(model.CodeNotFound, "appointment %s not found", id)
	}
	return appt, err
}

func (r *Repository) ActiveAppointments(ctx context.Context, businessID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE business_id = $1
			AND status IN ('pending', 'confirmed', 'rescheduled')
			AND deleted_at IS NULL
			AND scheduled_at >= $2
			AND scheduled_at < $3
		ORDER BY scheduled_at
	`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *Repository) Begin(ctx context.Context) (engine.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &storeTx{tx: tx, outboxRepo: r.outboxRepo}, nil
}

type storeTx struct {
	tx         pgx.Tx
	outboxRepo *outbox.Repository
}

// LockSlotDay takes the transaction-scoped advisory lock serializing all
// writers touching one business-day. The key is a stable 64-bit hash of
// (businessID, date); the lock releases with the transaction. It is not a
// distributed lock across storage backends.
func (t *storeTx) LockSlotDay(ctx context.Context, businessID string, day time.Time) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, slotLockKey(businessID, day))
	return err
}

func slotLockKey(businessID string, day time.Time) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(businessID))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(day.Format("2006-01-02")))
	return int64(h.Sum64())
}

func (t *storeTx) AppointmentForUpdate(ctx context.Context, businessID, id string) (model.Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1 AND business_id = $2 AND deleted_at IS NULL
		FOR UPDATE
	`, id, businessID)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, model.NewError(model.CodeNotFound, "appointment %s not found", id)
	}
	return appt, err
}

func (t *storeTx) ActiveOverlapping(ctx context.Context, businessID string, start, end time.Time, excludeID string) ([]model.Appointment, error) {
	// Half-open semantics: [scheduled_at, scheduled_at + duration)
	// intersects [start, end).
	rows, err := t.tx.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE business_id = $1
			AND status IN ('pending', 'confirmed', 'rescheduled')
			AND deleted_at IS NULL
			AND scheduled_at < $3
			AND scheduled_at + make_interval(mins => duration_minutes) > $2
			AND ($4 = '' OR id::text <> $4)
	`, businessID, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (t *storeTx) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	var customerID any
	if appt.CustomerID != "" {
		customerID = appt.CustomerID
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, business_id, customer_id, scheduled_at, duration_minutes, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, appt.ID, appt.BusinessID, customerID, appt.ScheduledAt, appt.DurationMins, appt.Status, appt.RequestedAt)
	if IsUniqueViolation(err) {
		return model.NewError(model.CodeSlotConflict, "slot is already occupied")
	}
	return err
}

func (t *storeTx) UpdateAppointmentStatus(ctx context.Context, appt model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3, finished_at = $4
		WHERE id = $1 AND business_id = $2
	`, appt.ID, appt.BusinessID, appt.Status, appt.FinishedAt)
	return err
}

func (t *storeTx) UpdateAppointmentSchedule(ctx context.Context, appt model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET scheduled_at = $3, rescheduled_from = $4, status = $5
		WHERE id = $1 AND business_id = $2
	`, appt.ID, appt.BusinessID, appt.ScheduledAt, appt.RescheduledFrom, appt.Status)
	if IsUniqueViolation(err) {
		return model.NewError(model.CodeSlotConflict, "slot is already occupied")
	}
	return err
}

func (t *storeTx) SoftDeleteAppointment(ctx context.Context, businessID, id string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET deleted_at = $3
		WHERE id = $1 AND business_id = $2 AND deleted_at IS NULL
	`, id, businessID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.NewError(model.CodeNotFound, "appointment %s not found", id)
	}
	return nil
}

func (t *storeTx) InsertEvent(ctx context.Context, eventType, aggregateID string, payload []byte) error {
	return t.outboxRepo.Insert(ctx, t.tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func (t *storeTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *storeTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.BusinessID,
		&appt.CustomerID,
		&appt.ScheduledAt,
		&appt.DurationMins,
		&status,
		&appt.RequestedAt,
		&appt.FinishedAt,
		&appt.RescheduledFrom,
		&appt.DeletedAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
