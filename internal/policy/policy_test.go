package policy

import (
	"testing"
	"time"

	"github.com/slotwise/slotwise/internal/model"
)

func intPtr(v int) *int {
	return &v
}

func checker(p model.BookingPolicy, now time.Time) Checker {
	return Checker{
		Business: model.Business{ID: "biz-1", OwnerID: "owner-1", Policy: p},
		Loc:      time.UTC,
		Now:      now,
	}
}

func TestCancellationAllowed_NoticeWindow(t *testing.T) {
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	c := checker(model.BookingPolicy{CancellationNoticeHours: intPtr(48)}, now)
	customer := model.Actor{ID: "cust-1"}

	if c.CancellationAllowed(now.Add(47*time.Hour), customer) {
		t.Fatal("47h notice must be blocked with a 48h threshold")
	}
	if !c.CancellationAllowed(now.Add(48*time.Hour), customer) {
		t.Fatal("exactly 48h notice must be allowed")
	}
}

func TestCancellationAllowed_OwnerBypass(t *testing.T) {
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	c := checker(model.BookingPolicy{CancellationNoticeHours: intPtr(48)}, now)

	// One minute before the appointment starts.
	scheduledAt := now.Add(time.Minute)
	if !c.CancellationAllowed(scheduledAt, model.Actor{ID: "owner-1"}) {
		t.Fatal("owner must bypass the notice window")
	}
	if c.CancellationAllowed(scheduledAt, model.Actor{ID: "cust-1"}) {
		t.Fatal("non-owner must not bypass the notice window")
	}
}

func TestCancellationAllowed_UnsetMeansAllowed(t *testing.T) {
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	c := checker(model.BookingPolicy{}, now)
	if !c.CancellationAllowed(now.Add(time.Minute), model.Actor{ID: "cust-1"}) {
		t.Fatal("unset threshold must allow")
	}
}

func TestRescheduleAllowed_UsesPreviousTime(t *testing.T) {
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	c := checker(model.BookingPolicy{RescheduleNoticeHours: intPtr(24)}, now)
	customer := model.Actor{ID: "cust-1"}

	// The slot being released is 10h away; the new one being far in the
	// future does not matter.
	if c.RescheduleAllowed(now.Add(10*time.Hour), customer) {
		t.Fatal("10h notice must be blocked with a 24h threshold")
	}
	if !c.RescheduleAllowed(now.Add(30*time.Hour), customer) {
		t.Fatal("30h notice must be allowed")
	}
	if !c.RescheduleAllowed(now.Add(10*time.Hour), model.Actor{ID: "owner-1"}) {
		t.Fatal("owner must bypass reschedule notice")
	}
}

func TestSlotRequestable_LeadAndHorizon(t *testing.T) {
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	c := checker(model.BookingPolicy{MinLeadHours: intPtr(4), MaxAdvanceDays: intPtr(7)}, now)

	if c.SlotRequestable(now.Add(3 * time.Hour)) {
		t.Fatal("candidate inside the lead window must be rejected")
	}
	if !c.SlotRequestable(now.Add(4 * time.Hour)) {
		t.Fatal("candidate at exactly the lead boundary must be allowed")
	}
	// March 9 is today+7, still inside the horizon; March 10 is past it.
	if !c.SlotRequestable(time.Date(2026, time.March, 9, 23, 0, 0, 0, time.UTC)) {
		t.Fatal("candidate on the horizon date must be allowed")
	}
	if c.SlotRequestable(time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)) {
		t.Fatal("candidate past the horizon must be rejected")
	}
}

func TestSlotRequestable_UnsetMeansAllowed(t *testing.T) {
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	c := checker(model.BookingPolicy{}, now)
	if !c.SlotRequestable(now.AddDate(1, 0, 0)) {
		t.Fatal("no horizon means any future date is requestable")
	}
}
