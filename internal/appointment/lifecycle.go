package appointment

import "slices"

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an appointment in from may move to to.
// Re-applying the current status is always allowed.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// InitialStatus is pending for patient bookings and confirmed when clinic
// staff book directly.
func InitialStatus(byStaff bool) Status {
	if byStaff {
		return StatusConfirmed
	}
	return StatusPending
}
