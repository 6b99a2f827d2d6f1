package schedule

import (
	"testing"
	"time"

	"github.com/slotwise/slotwise/internal/model"
)

func minutes(v int) *int {
	return &v
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func weeklySchedule() model.AvailabilitySchedule {
	return model.AvailabilitySchedule{
		ID: "sched-1",
		Windows: []model.AvailabilityWindow{
			{Weekday: time.Monday, OpensMinute: minutes(540), ClosesMinute: minutes(720)},
			{Weekday: time.Monday, OpensMinute: minutes(780), ClosesMinute: minutes(1020)},
			{Weekday: time.Tuesday, OpensMinute: minutes(540), ClosesMinute: minutes(1020)},
		},
	}
}

func TestWindowsForDate_WeekdayMatch(t *testing.T) {
	s := weeklySchedule()

	monday := date(2026, time.March, 2)
	got := WindowsForDate(s, monday)
	if len(got) != 2 {
		t.Fatalf("expected 2 monday ranges, got %d", len(got))
	}
	if got[0].OpensMinute != 540 || got[0].ClosesMinute != 720 {
		t.Fatalf("unexpected first range: %+v", got[0])
	}

	sunday := date(2026, time.March, 1)
	if got := WindowsForDate(s, sunday); len(got) != 0 {
		t.Fatalf("expected no sunday ranges, got %d", len(got))
	}
}

func TestWindowsForDate_TombstoneWindowsSkipped(t *testing.T) {
	s := model.AvailabilitySchedule{
		Windows: []model.AvailabilityWindow{
			{Weekday: time.Monday, OpensMinute: minutes(540), ClosesMinute: nil},
			{Weekday: time.Monday, OpensMinute: nil, ClosesMinute: minutes(1020)},
		},
	}
	if got := WindowsForDate(s, date(2026, time.March, 2)); len(got) != 0 {
		t.Fatalf("expected tombstone windows to yield nothing, got %d", len(got))
	}
}

func TestWindowsForDate_ClosedExceptionSuppressesDay(t *testing.T) {
	s := weeklySchedule()
	s.Exceptions = []model.AvailabilityException{
		{
			StartsOn: date(2026, time.March, 2),
			EndsOn:   date(2026, time.March, 4),
			Kind:     model.ExceptionClosed,
		},
	}

	if got := WindowsForDate(s, date(2026, time.March, 2)); len(got) != 0 {
		t.Fatalf("expected closed date to have no ranges, got %d", len(got))
	}
	// Tuesday inside the range is also suppressed.
	if got := WindowsForDate(s, date(2026, time.March, 3)); len(got) != 0 {
		t.Fatalf("expected closed tuesday to have no ranges, got %d", len(got))
	}
	// Outside the exception range the weekday windows apply again.
	if got := WindowsForDate(s, date(2026, time.March, 9)); len(got) != 2 {
		t.Fatalf("expected next monday to have 2 ranges, got %d", len(got))
	}
}

func TestWindowsForDate_HoursOverrideReplacesWindows(t *testing.T) {
	s := weeklySchedule()
	s.Exceptions = []model.AvailabilityException{
		{
			StartsOn:     date(2026, time.March, 2),
			EndsOn:       date(2026, time.March, 2),
			Kind:         model.ExceptionReducedHours,
			OpensMinute:  minutes(600),
			ClosesMinute: minutes(780),
		},
	}

	got := WindowsForDate(s, date(2026, time.March, 2))
	if len(got) != 1 {
		t.Fatalf("expected a single override range, got %d", len(got))
	}
	if got[0].OpensMinute != 600 || got[0].ClosesMinute != 780 {
		t.Fatalf("override not applied: %+v", got[0])
	}
}

func TestWindowsForDate_ClosedBeatsHoursOverride(t *testing.T) {
	s := weeklySchedule()
	s.Exceptions = []model.AvailabilityException{
		{
			StartsOn:     date(2026, time.March, 2),
			EndsOn:       date(2026, time.March, 2),
			Kind:         model.ExceptionExtendedHours,
			OpensMinute:  minutes(480),
			ClosesMinute: minutes(1200),
		},
		{
			StartsOn: date(2026, time.March, 2),
			EndsOn:   date(2026, time.March, 2),
			Kind:     model.ExceptionClosed,
		},
	}

	if got := WindowsForDate(s, date(2026, time.March, 2)); len(got) != 0 {
		t.Fatalf("closed exception must win over hours override, got %d ranges", len(got))
	}
}

func TestWindowsForDate_OverrideMissingBoundYieldsNothing(t *testing.T) {
	s := weeklySchedule()
	s.Exceptions = []model.AvailabilityException{
		{
			StartsOn:    date(2026, time.March, 2),
			EndsOn:      date(2026, time.March, 2),
			Kind:        model.ExceptionReducedHours,
			OpensMinute: minutes(600),
		},
	}

	if got := WindowsForDate(s, date(2026, time.March, 2)); len(got) != 0 {
		t.Fatalf("override with missing close must yield nothing, got %d", len(got))
	}
}
