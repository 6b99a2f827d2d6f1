// Package policy evaluates per-business booking thresholds: cancellation
// and reschedule notice, booking lead time, and booking horizon. Every
// check defaults to allowed when its threshold is unset.
package policy

import (
	"time"

	"github.com/slotwise/slotwise/internal/model"
)

// Checker evaluates one business's thresholds against a fixed observation
// time. The location is the business-local zone used for horizon math.
type Checker struct {
	Business model.Business
	Loc      *time.Location
	Now      time.Time
}

func (c Checker) isOwner(actor model.Actor) bool {
	return actor.ID != "" && actor.ID == c.Business.OwnerID
}

// CancellationAllowed reports whether the actor may cancel an appointment
// scheduled at the given instant. The business owner bypasses the notice
// window unconditionally.
func (c Checker) CancellationAllowed(scheduledAt time.Time, actor model.Actor) bool {
	if c.isOwner(actor) {
		return true
	}
	return c.noticeSatisfied(scheduledAt, c.Business.Policy.CancellationNoticeHours)
}

// RescheduleAllowed reports whether the actor may move an appointment away
// from previousScheduledAt. Notice is measured against the slot being
// released, not the new one: reschedule notice protects the business from
// short-notice changes to a slot it already held.
func (c Checker) RescheduleAllowed(previousScheduledAt time.Time, actor model.Actor) bool {
	if c.isOwner(actor) {
		return true
	}
	return c.noticeSatisfied(previousScheduledAt, c.Business.Policy.RescheduleNoticeHours)
}

// SlotRequestable reports whether a candidate start time falls inside the
// bookable window: not earlier than now plus the minimum lead, and not on
// a local date past the booking horizon.
func (c Checker) SlotRequestable(candidate time.Time) bool {
	if h := c.Business.Policy.MinLeadHours; h != nil {
		if candidate.Before(c.Now.Add(time.Duration(*h) * time.Hour)) {
			return false
		}
	}
	if d := c.Business.Policy.MaxAdvanceDays; d != nil {
		latest := model.CivilDate(c.Now.In(c.Loc)).AddDate(0, 0, *d)
		if model.CivilDate(candidate.In(c.Loc)).After(latest) {
			return false
		}
	}
	return true
}

func (c Checker) noticeSatisfied(reference time.Time, hours *int) bool {
	if hours == nil {
		return true
	}
	return reference.Sub(c.Now) >= time.Duration(*hours)*time.Hour
}
