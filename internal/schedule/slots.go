package schedule

import (
	"iter"
	"time"
)

// SlotMinutes yields the start minute of every step of granularity minutes
// that fits entirely inside one of ranges. Ranges are walked in order, so
// overlapping input yields duplicates; normalized hours never overlap.
// The sequence is recomputed on every iteration.
func SlotMinutes(ranges []Range, granularity int) iter.Seq[int] {
	return func(yield func(int) bool) {
		if granularity <= 0 {
			return
		}
		for _, r := range ranges {
			for m := r.Start; m+granularity <= r.End; m += granularity {
				if !yield(m) {
					return
				}
			}
		}
	}
}

// Slots is SlotMinutes rendered as HH:MM.
func Slots(ranges []Range, granularity int) iter.Seq[string] {
	return func(yield func(string) bool) {
		for m := range SlotMinutes(ranges, granularity) {
			if !yield(FormatClock(m)) {
				return
			}
		}
	}
}

// SlotsFor generates the slots of the weekday of date.
func SlotsFor(hours WorkingHours, date time.Time, granularity int) iter.Seq[string] {
	return Slots(hours.Day(date.Weekday()), granularity)
}
