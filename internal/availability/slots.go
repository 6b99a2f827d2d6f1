// Package availability turns resolved schedule ranges into bookable slot
// start instants and filters out slots taken by existing appointments.
package availability

import (
	"time"

	"github.com/slotwise/slotwise/internal/model"
	"github.com/slotwise/slotwise/internal/schedule"
)

// Policy holds the booking-window dimensions of slot eligibility. A nil
// field means no restriction.
type Policy struct {
	MinLeadHours   *int
	MaxAdvanceDays *int
}

// Generator produces candidate slot starts for one schedulable entity.
// All emitted instants carry the schedule's location.
type Generator struct {
	Schedule     model.AvailabilitySchedule
	Loc          *time.Location
	SlotDuration time.Duration
	Policy       Policy
	Now          time.Time
}

// Slots walks [from, to] (civil dates, inclusive) in ascending order and
// emits eligible slot starts, at most limit of them. The cap is a cost
// guard: generation halts mid-range once it is reached.
//
// A candidate is eligible when it is strictly later than now, respects the
// minimum lead time, and its business-local date does not exceed the
// booking horizon. Candidates are date-ordered but not sorted within a day
// when windows overlap.
func (g Generator) Slots(from, to time.Time, limit int) []time.Time {
	if g.SlotDuration <= 0 || limit <= 0 {
		return nil
	}

	var horizon time.Time
	if g.Policy.MaxAdvanceDays != nil {
		horizon = model.CivilDate(g.Now.In(g.Loc)).AddDate(0, 0, *g.Policy.MaxAdvanceDays)
	}
	earliest := g.Now
	if g.Policy.MinLeadHours != nil {
		earliest = g.Now.Add(time.Duration(*g.Policy.MinLeadHours) * time.Hour)
	}

	var slots []time.Time
	for d := model.CivilDate(from); !d.After(model.CivilDate(to)); d = d.AddDate(0, 0, 1) {
		if !horizon.IsZero() && d.After(horizon) {
			break
		}
		for _, r := range schedule.WindowsForDate(g.Schedule, d) {
			y, m, day := d.Date()
			for min := r.OpensMinute; min+int(g.SlotDuration.Minutes()) <= r.ClosesMinute; min += int(g.SlotDuration.Minutes()) {
				t := time.Date(y, m, day, 0, min, 0, 0, g.Loc)
				if !t.After(earliest) {
					continue
				}
				slots = append(slots, t)
				if len(slots) >= limit {
					return slots
				}
			}
		}
	}
	return slots
}

// ExcludeBooked removes candidates whose slot-aligned start matches the
// slot-aligned start of any booked appointment. Booked timestamps are
// snapped down to the nearest slot boundary in local time first, because
// appointments created by hand may not line up with the generator cadence
// and exact-instant equality would under-filter.
func ExcludeBooked(candidates []time.Time, booked []model.Appointment, slotDuration time.Duration, loc *time.Location) []time.Time {
	if len(candidates) == 0 || len(booked) == 0 {
		return candidates
	}
	occupied := make(map[int64]struct{}, len(booked))
	for _, a := range booked {
		occupied[AlignToSlot(a.ScheduledAt, slotDuration, loc).Unix()] = struct{}{}
	}
	out := make([]time.Time, 0, len(candidates))
	for _, c := range candidates {
		if _, taken := occupied[AlignToSlot(c, slotDuration, loc).Unix()]; taken {
			continue
		}
		out = append(out, c)
	}
	return out
}

// AlignToSlot floors t to the nearest slot boundary of the local day.
func AlignToSlot(t time.Time, slotDuration time.Duration, loc *time.Location) time.Time {
	slotMins := int(slotDuration.Minutes())
	if slotMins <= 0 {
		return t
	}
	lt := t.In(loc)
	y, m, d := lt.Date()
	sinceMidnight := lt.Hour()*60 + lt.Minute()
	aligned := (sinceMidnight / slotMins) * slotMins
	return time.Date(y, m, d, 0, aligned, 0, 0, loc)
}
