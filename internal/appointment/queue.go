package appointment

import (
	"cmp"
	"slices"
)

// AssignQueueNumbers orders a day's appointments by time, then creation, then
// id, and numbers them from 1. The input slice is left untouched.
func AssignQueueNumbers(appts []Appointment) []Appointment {
	out := slices.Clone(appts)
	slices.SortStableFunc(out, func(a, b Appointment) int {
		if c := cmp.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	for i := range out {
		out[i].QueueNumber = i + 1
	}
	return out
}
