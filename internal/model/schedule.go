package model

import "time"

type ExceptionKind string

const (
	ExceptionClosed        ExceptionKind = "closed"
	ExceptionReducedHours  ExceptionKind = "reduced_hours"
	ExceptionExtendedHours ExceptionKind = "extended_hours"
)

// AvailabilitySchedule is the declarative weekly availability of one
// business. At most one schedule exists per business; its timezone wins
// over the business timezone when set.
type AvailabilitySchedule struct {
	ID         string
	BusinessID string
	Timezone   string
	Windows    []AvailabilityWindow
	Exceptions []AvailabilityException
}

func (s AvailabilitySchedule) Location(fallback string) (*time.Location, error) {
	tz := s.Timezone
	if tz == "" {
		tz = fallback
	}
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

// AvailabilityWindow is a recurring weekly opening. Hours are encoded as
// minutes since local midnight. A window with either bound missing is a
// tombstone and never produces open time.
type AvailabilityWindow struct {
	ID           string
	ScheduleID   string
	Weekday      time.Weekday
	OpensMinute  *int
	ClosesMinute *int
}

// AvailabilityException overrides the weekly windows for an inclusive
// civil date range. A closed exception suppresses the day entirely;
// reduced/extended hours replace the weekday windows with a single range.
type AvailabilityException struct {
	ID           string
	ScheduleID   string
	StartsOn     time.Time // civil date, midnight UTC
	EndsOn       time.Time // civil date, midnight UTC, inclusive
	Kind         ExceptionKind
	OpensMinute  *int
	ClosesMinute *int
}

// Covers reports whether the exception's date range includes the given
// civil date. Dates compare by calendar day, never by instant.
func (e AvailabilityException) Covers(date time.Time) bool {
	d := CivilDate(date)
	return !d.Before(CivilDate(e.StartsOn)) && !d.After(CivilDate(e.EndsOn))
}

// CivilDate normalizes t to midnight UTC of its own calendar day,
// discarding clock time and zone offset.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
