package appointment

import (
	"slices"
	"time"

	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

// OfferableSlots lists the slots of date that can still be offered: generated
// from hours, without past ones and without those in booked. date is a
// calendar date (see DateOf) and now is the clinic-local wall clock.
//
// On today's date a slot survives only if it starts after now and at least
// lead after now. Earlier dates yield nothing.
func OfferableSlots(hours schedule.WorkingHours, date, now time.Time, granularity int, lead time.Duration, booked map[string]struct{}) []string {
	slots := []string{}

	today := DateOf(now)
	if date.Before(today) {
		return slots
	}

	isToday := date.Equal(today)
	nowMinute := now.Hour()*60 + now.Minute()
	leadMinutes := int(lead / time.Minute)

	seen := make(map[int]struct{})
	var minutes []int
	for m := range schedule.SlotMinutes(hours.Day(date.Weekday()), granularity) {
		if isToday && (m <= nowMinute || m-nowMinute < leadMinutes) {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		if _, taken := booked[schedule.FormatClock(m)]; taken {
			continue
		}
		minutes = append(minutes, m)
	}

	slices.Sort(minutes)
	for _, m := range minutes {
		slots = append(slots, schedule.FormatClock(m))
	}
	return slots
}

// bookedSet is the set of slot times held by live appointments.
func bookedSet(appts []Appointment) map[string]struct{} {
	set := make(map[string]struct{}, len(appts))
	for _, a := range appts {
		if a.Status == StatusCancelled {
			continue
		}
		set[a.Time] = struct{}{}
	}
	return set
}
