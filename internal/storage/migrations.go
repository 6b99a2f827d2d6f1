package storage

import (
	"context"

	"github.com/slotwise/slotwise/libs/db"
)

// The partial unique index on appointments is the storage-level backstop
// for the booking conflict guard: it catches identical-timestamp inserts
// from writers that bypass the advisory lock. It intentionally uses the
// same active/non-deleted predicate as every occupancy query.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS businesses (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	owner_id UUID,
	name TEXT NOT NULL DEFAULT '',
	timezone TEXT NOT NULL DEFAULT 'UTC',
	slot_duration_minutes INT NOT NULL DEFAULT 30,
	cancellation_notice_hours INT,
	reschedule_notice_hours INT,
	max_advance_days INT,
	min_lead_hours INT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS availability_schedules (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	business_id UUID NOT NULL UNIQUE REFERENCES businesses(id) ON DELETE CASCADE,
	timezone TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS availability_windows (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	schedule_id UUID NOT NULL REFERENCES availability_schedules(id) ON DELETE CASCADE,
	weekday INT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	opens_minute INT,
	closes_minute INT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_windows_schedule_weekday
	ON availability_windows (schedule_id, weekday);

CREATE TABLE IF NOT EXISTS availability_exceptions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	schedule_id UUID NOT NULL REFERENCES availability_schedules(id) ON DELETE CASCADE,
	starts_on DATE NOT NULL,
	ends_on DATE NOT NULL,
	kind TEXT NOT NULL DEFAULT 'closed',
	opens_minute INT,
	closes_minute INT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (ends_on >= starts_on)
);

CREATE TABLE IF NOT EXISTS appointments (
	id UUID PRIMARY KEY,
	business_id UUID NOT NULL REFERENCES businesses(id),
	customer_id UUID,
	scheduled_at TIMESTAMPTZ NOT NULL,
	duration_minutes INT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	requested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ,
	rescheduled_from TIMESTAMPTZ,
	deleted_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_appointment_slot
	ON appointments (business_id, scheduled_at)
	WHERE status IN ('pending', 'confirmed', 'rescheduled') AND deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_appointments_business_time
	ON appointments (business_id, scheduled_at);

CREATE TABLE IF NOT EXISTS outbox_events (
	id BIGSERIAL PRIMARY KEY,
	event_id UUID NOT NULL DEFAULT gen_random_uuid(),
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	traceparent TEXT NOT NULL DEFAULT '',
	tracestate TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
	ON outbox_events (id) WHERE published_at IS NULL;
`

func Migrate(ctx context.Context, pool *db.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}
