// Package schedule derives the open time ranges of a business for a given
// calendar date from its weekly windows and date-bound exceptions.
package schedule

import (
	"time"

	"github.com/slotwise/slotwise/internal/model"
)

// Range is an open interval within a single day, in minutes since local
// midnight. ClosesMinute is exclusive.
type Range struct {
	OpensMinute  int
	ClosesMinute int
}

func (r Range) Valid() bool {
	return r.ClosesMinute > r.OpensMinute
}

// WindowsForDate resolves the open ranges for one civil date.
//
// Exception precedence: any covering "closed" exception suppresses the day
// entirely; otherwise a covering hours-override exception replaces the
// weekday windows with its single range (or nothing when either bound is
// absent); otherwise every weekday window with both bounds present applies.
// Window order is not significant.
func WindowsForDate(s model.AvailabilitySchedule, date time.Time) []Range {
	var override *model.AvailabilityException
	for i := range s.Exceptions {
		exc := s.Exceptions[i]
		if !exc.Covers(date) {
			continue
		}
		if exc.Kind == model.ExceptionClosed {
			return nil
		}
		if override == nil {
			override = &s.Exceptions[i]
		}
	}

	if override != nil {
		if override.OpensMinute == nil || override.ClosesMinute == nil {
			return nil
		}
		r := Range{OpensMinute: *override.OpensMinute, ClosesMinute: *override.ClosesMinute}
		if !r.Valid() {
			return nil
		}
		return []Range{r}
	}

	weekday := date.Weekday()
	var out []Range
	for _, w := range s.Windows {
		if w.Weekday != weekday {
			continue
		}
		// Windows missing either bound are tombstones.
		if w.OpensMinute == nil || w.ClosesMinute == nil {
			continue
		}
		r := Range{OpensMinute: *w.OpensMinute, ClosesMinute: *w.ClosesMinute}
		if !r.Valid() {
			continue
		}
		out = append(out, r)
	}
	return out
}
