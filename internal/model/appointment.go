package model

import "time"

type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusRescheduled Status = "rescheduled"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusFinished    Status = "finished"
)

// ActiveStatuses are the statuses that still occupy a slot. The partial
// unique index on appointments and every occupancy query use this same set.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusRescheduled}

func (s Status) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRescheduled, StatusCancelled, StatusNoShow, StatusFinished:
		return true
	}
	return false
}

type Appointment struct {
	ID              string
	BusinessID      string
	CustomerID      string
	ScheduledAt     time.Time
	DurationMins    int
	Status          Status
	RequestedAt     time.Time
	FinishedAt      *time.Time
	RescheduledFrom *time.Time
	DeletedAt       *time.Time
	CreatedAt       time.Time
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMins) * time.Minute
}

// EndsAt is the exclusive end of the occupied interval.
func (a Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(a.Duration())
}

// Actor identifies who is performing an operation. Authorization happens
// upstream; the engine only needs identity for owner-bypass policy rules.
type Actor struct {
	ID string
}

type BookingPolicy struct {
	CancellationNoticeHours *int
	RescheduleNoticeHours   *int
	MaxAdvanceDays          *int
	MinLeadHours            *int
}

type Business struct {
	ID               string
	OwnerID          string
	Name             string
	Timezone         string
	SlotDurationMins int
	Policy           BookingPolicy
}

func (b Business) SlotDuration() time.Duration {
	return time.Duration(b.SlotDurationMins) * time.Minute
}

// Location resolves the business IANA timezone. An unknown zone is an
// infrastructure error; schedules must be configured with valid zones.
func (b Business) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(b.Timezone)
}
