// Package schedule turns declared working hours into bookable time slots.
//
// Working hours arrive in several historical shapes; Normalize maps all of them
// onto WorkingHours so nothing downstream has to care how they were entered.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	MinutesPerDay = 24 * 60

	// DefaultGranularity is the step between generated slots, in minutes.
	DefaultGranularity = 30
)

var ErrInvalidScheduleInput = errors.New("invalid schedule input")

// Range is a half-open [Start, End) span of minutes within a day. End may be
// MinutesPerDay for a range that runs until midnight.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) valid() bool {
	return r.Start >= 0 && r.End <= MinutesPerDay && r.Start < r.End
}

func (r Range) String() string {
	return FormatClock(r.Start) + "-" + FormatClock(r.End)
}

// WorkingHours holds the ranges for each weekday, indexed by time.Weekday.
// An empty list means the day is closed.
type WorkingHours [7][]Range

var dayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// DayName returns the canonical key used for d in serialized hours.
func DayName(d time.Weekday) string {
	return dayNames[d]
}

func (h WorkingHours) Day(d time.Weekday) []Range {
	return h[d]
}

// Closed reports whether no day has any range.
func (h WorkingHours) Closed() bool {
	for _, ranges := range h {
		if len(ranges) > 0 {
			return false
		}
	}
	return true
}

func (h WorkingHours) MarshalJSON() ([]byte, error) {
	out := make(map[string][]Range, len(dayNames))
	for d, name := range dayNames {
		ranges := h[d]
		if ranges == nil {
			ranges = []Range{}
		}
		out[name] = ranges
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts any shape Normalize understands.
func (h *WorkingHours) UnmarshalJSON(data []byte) error {
	wh, err := NormalizeJSON(data)
	if err != nil {
		return err
	}
	*h = wh
	return nil
}

// FormatClock renders a minute of the day as HH:MM.
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// ParseClock parses "9", "09:30", "9:30 pm" and similar into a minute of the day.
func ParseClock(s string) (int, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	meridiem := ""
	for _, suffix := range []string{"am", "pm"} {
		if strings.HasSuffix(v, suffix) {
			meridiem = suffix
			v = strings.TrimSpace(strings.TrimSuffix(v, suffix))
			break
		}
	}
	if v == "" {
		return 0, fmt.Errorf("empty clock value %q", s)
	}

	hourPart, minutePart, hasMinutes := strings.Cut(v, ":")
	if !hasMinutes {
		hourPart, minutePart, hasMinutes = strings.Cut(v, ".")
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute := 0
	if hasMinutes {
		if len(minutePart) != 2 {
			return 0, fmt.Errorf("invalid minutes in %q", s)
		}
		minute, err = strconv.Atoi(minutePart)
		if err != nil || minute > 59 {
			return 0, fmt.Errorf("invalid minutes in %q", s)
		}
	}

	switch meridiem {
	case "am", "pm":
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("invalid 12-hour value %q", s)
		}
		hour %= 12
		if meridiem == "pm" {
			hour += 12
		}
	}
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("hour out of range in %q", s)
	}
	return hour*60 + minute, nil
}
