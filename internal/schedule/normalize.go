package schedule

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// wrapperKeys are the keys older profile documents nest the per-day hours under.
var wrapperKeys = []string{"workingHours", "working_hours", "hours", "schedule", "clinic"}

const maxWrapDepth = 4

var dayAliases = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday, "0": time.Sunday,
	"mon": time.Monday, "monday": time.Monday, "1": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday, "2": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday, "3": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday, "4": time.Thursday,
	"fri": time.Friday, "friday": time.Friday, "5": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday, "6": time.Saturday,
}

func parseDay(v any) (time.Weekday, bool) {
	switch d := v.(type) {
	case string:
		wd, ok := dayAliases[strings.ToLower(strings.TrimSpace(d))]
		return wd, ok
	case float64:
		if d >= 0 && d <= 6 && d == math.Trunc(d) {
			return time.Weekday(int(d)), true
		}
	}
	return 0, false
}

// NormalizeJSON decodes raw bytes and normalizes them. Only bytes that are not
// JSON at all are rejected; empty input means closed all week.
func NormalizeJSON(data []byte) (WorkingHours, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return WorkingHours{}, nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return WorkingHours{}, fmt.Errorf("%w: %v", ErrInvalidScheduleInput, err)
	}
	return Normalize(raw), nil
}

// Normalize maps a decoded hours payload onto WorkingHours. It never fails:
// unknown shapes, absent days and malformed ranges all read as closed.
func Normalize(raw any) WorkingHours {
	var wh WorkingHours

	switch v := raw.(type) {
	case WorkingHours:
		for d := range v {
			wh[d] = mergeRanges(v[d])
		}
		return wh
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		raw = m
	case []byte:
		wh, _ = NormalizeJSON(v)
		return wh
	case json.RawMessage:
		wh, _ = NormalizeJSON(v)
		return wh
	}

	days := findDays(raw, 0)
	for key, value := range days {
		d, ok := parseDay(key)
		if !ok {
			continue
		}
		wh[d] = append(wh[d], dayRanges(value)...)
	}
	for d := range wh {
		wh[d] = mergeRanges(wh[d])
	}
	return wh
}

// findDays locates the per-day mapping, unwrapping known wrapper keys and
// regrouping lists of {day, start, end} entries.
func findDays(raw any, depth int) map[string]any {
	if depth > maxWrapDepth {
		return nil
	}
	switch v := raw.(type) {
	case map[string]any:
		for k := range v {
			if _, ok := parseDay(k); ok {
				return v
			}
		}
		for _, key := range wrapperKeys {
			if inner, ok := lookup(v, key); ok {
				if days := findDays(inner, depth+1); days != nil {
					return days
				}
			}
		}
	case []any:
		grouped := make(map[string]any)
		for _, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			dayValue, ok := lookup(entry, "day", "dayOfWeek", "day_of_week", "weekday")
			if !ok {
				continue
			}
			d, ok := parseDay(dayValue)
			if !ok {
				continue
			}
			name := DayName(d)
			list, _ := grouped[name].([]any)
			grouped[name] = append(list, entry)
		}
		if len(grouped) > 0 {
			return grouped
		}
	}
	return nil
}

func dayRanges(value any) []Range {
	switch v := value.(type) {
	case string:
		return parseRangeList(v)
	case []any:
		var out []Range
		for _, item := range v {
			switch it := item.(type) {
			case string:
				out = append(out, parseRangeList(it)...)
			case map[string]any:
				if openValue, ok := lookup(it, "open"); ok {
					if _, isString := openValue.(string); isString {
						out = append(out, dayObject(it)...)
						continue
					}
				}
				if flag, ok := openFlag(it); ok && !flag {
					continue
				}
				out = append(out, objectRanges(it)...)
			}
		}
		return out
	case map[string]any:
		return dayObject(v)
	}
	return nil
}

// dayObject handles {open: true, start, end} and the older {open: "09:00", close: "18:00"}.
func dayObject(m map[string]any) []Range {
	if openValue, ok := lookup(m, "open"); ok {
		if s, isString := openValue.(string); isString {
			closeValue, _ := lookup(m, "close")
			r, ok := makeRange(s, closeValue)
			if !ok {
				return nil
			}
			return []Range{r}
		}
	}
	if flag, ok := openFlag(m); !ok || !flag {
		return nil
	}
	if nested, ok := lookup(m, "ranges", "slots", "periods"); ok {
		return dayRanges(nested)
	}
	return objectRanges(m)
}

func openFlag(m map[string]any) (bool, bool) {
	v, ok := lookup(m, "open", "isOpen", "is_open", "isWorkDay", "is_work_day")
	if !ok {
		return false, false
	}
	b, isBool := v.(bool)
	return isBool && b, true
}

// objectRanges reads a single {start, end} object, splitting it around an
// optional break.
func objectRanges(m map[string]any) []Range {
	start, _ := lookup(m, "start", "from", "startTime", "start_time")
	end, _ := lookup(m, "end", "to", "endTime", "end_time")
	r, ok := makeRange(start, end)
	if !ok {
		return nil
	}

	breakStart, hasBreakStart := lookup(m, "breakStart", "break_start")
	breakEnd, hasBreakEnd := lookup(m, "breakEnd", "break_end")
	if !hasBreakStart || !hasBreakEnd {
		return []Range{r}
	}
	br, ok := makeRange(breakStart, breakEnd)
	if !ok || br.Start < r.Start || br.End > r.End {
		return []Range{r}
	}
	return []Range{{Start: r.Start, End: br.Start}, {Start: br.End, End: r.End}}
}

func makeRange(start, end any) (Range, bool) {
	s, ok := minuteValue(start)
	if !ok {
		return Range{}, false
	}
	e, ok := endMinuteValue(end)
	if !ok {
		return Range{}, false
	}
	r := Range{Start: s, End: e}
	return r, r.valid()
}

// endMinuteValue reads the closing bound of a range. "24:00", 1440 and a
// closing time of midnight ("00:00", 0) all mean end of day.
func endMinuteValue(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		if c := strings.TrimSpace(t); c == "24:00" || c == "24" {
			return MinutesPerDay, true
		}
	case float64:
		if t == MinutesPerDay {
			return MinutesPerDay, true
		}
	case int:
		if t == MinutesPerDay {
			return MinutesPerDay, true
		}
	}
	m, ok := minuteValue(v)
	if ok && m == 0 {
		return MinutesPerDay, true
	}
	return m, ok
}

func minuteValue(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		m, err := ParseClock(t)
		return m, err == nil
	case float64:
		if t != math.Trunc(t) || t < 0 || t >= MinutesPerDay {
			return 0, false
		}
		return int(t), true
	case int:
		return t, t >= 0 && t < MinutesPerDay
	}
	return 0, false
}

// parseRangeList parses "09:00-12:00, 13:00-17:00".
func parseRangeList(s string) []Range {
	var out []Range
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if r, ok := parseRange(part); ok {
			out = append(out, r)
		}
	}
	return out
}

func parseRange(s string) (Range, bool) {
	s = strings.TrimSpace(s)
	for _, sep := range []string{" to ", "–", "-"} {
		start, end, found := strings.Cut(s, sep)
		if found {
			return makeRange(start, end)
		}
	}
	return Range{}, false
}

// mergeRanges drops invalid ranges, sorts the rest and merges any that overlap
// or touch.
func mergeRanges(in []Range) []Range {
	valid := make([]Range, 0, len(in))
	for _, r := range in {
		if r.valid() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Start == valid[j].Start {
			return valid[i].End < valid[j].End
		}
		return valid[i].Start < valid[j].Start
	})

	out := valid[:1]
	for _, r := range valid[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// lookup returns the first of keys present in m, matching case-insensitively.
func lookup(m map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return v, true
		}
	}
	for k, v := range m {
		for _, key := range keys {
			if strings.EqualFold(k, key) {
				return v, true
			}
		}
	}
	return nil, false
}
