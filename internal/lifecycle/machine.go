// Package lifecycle enforces the appointment status graph and the temporal
// preconditions of individual transitions.
package lifecycle

import (
	"time"

	"github.com/slotwise/slotwise/internal/model"
)

// transitions is the full status graph. Cancelled, no_show, and finished
// are terminal.
var transitions = map[model.Status][]model.Status{
	model.StatusPending:     {model.StatusConfirmed},
	model.StatusConfirmed:   {model.StatusCancelled, model.StatusRescheduled, model.StatusNoShow, model.StatusFinished},
	model.StatusRescheduled: {model.StatusConfirmed, model.StatusCancelled},
	model.StatusCancelled:   {},
	model.StatusNoShow:      {},
	model.StatusFinished:    {},
}

// Reachable reports whether to is directly reachable from from.
func Reachable(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Check validates a transition attempt without applying it.
//
// Order matters: an already-cancelled appointment is reported as locked
// before any graph check, and the graph is checked before the temporal
// gates so that callers always see the most specific error.
func Check(appt model.Appointment, to model.Status, now time.Time) error {
	if !to.Valid() {
		return model.NewError(model.CodeMalformedInput, "unknown status %q", to)
	}
	if appt.Status == model.StatusCancelled {
		return model.NewError(model.CodeCancelledLocked, "appointment is cancelled")
	}
	if !Reachable(appt.Status, to) {
		return model.NewError(model.CodeInvalidTransition, "cannot move from %s to %s", appt.Status, to)
	}
	if to == model.StatusNoShow || to == model.StatusFinished {
		// Gate on the start time, not the end time.
		if !appt.ScheduledAt.Before(now) {
			return model.NewError(model.CodeBeforeScheduled, "scheduled time has not passed yet")
		}
	}
	return nil
}

// ParseFinishedAt interprets a caller-supplied finish timestamp in the
// business location. Absent or unparseable input degrades to now.
func ParseFinishedAt(raw string, loc *time.Location, now time.Time) time.Time {
	if raw == "" {
		return now
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t
		}
	}
	return now
}
