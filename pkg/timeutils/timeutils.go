package timeutils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Daily   = "daily"
	Weekly  = "weekly"
	Monthly = "monthly"
)

// NextOccurrence returns the first instant strictly after `after` that
// matches the rule. Hour and minute (seconds are dropped) come from template,
// read in loc; for monthly rules so does the day of month. A day of month
// past the end of a shorter month is clamped to that month's last day.
func NextOccurrence(kind string, days []int, template, after time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	tpl := template.In(loc)
	from := after.In(loc)
	hour, minute := tpl.Hour(), tpl.Minute()

	switch kind {
	case Daily:
		for i := 0; i <= 2; i++ {
			c := time.Date(from.Year(), from.Month(), from.Day()+i, hour, minute, 0, 0, loc)
			if c.After(after) {
				return c, nil
			}
		}
	case Weekly:
		if len(days) == 0 {
			return time.Time{}, fmt.Errorf("weekly recurrence needs at least one day")
		}
		set := make(map[time.Weekday]bool, len(days))
		for _, d := range days {
			if d < 0 || d > 6 {
				return time.Time{}, fmt.Errorf("day must be between 0 and 6, got %d", d)
			}
			set[time.Weekday(d)] = true
		}
		for i := 0; i <= 8; i++ {
			c := time.Date(from.Year(), from.Month(), from.Day()+i, hour, minute, 0, 0, loc)
			if set[c.Weekday()] && c.After(after) {
				return c, nil
			}
		}
	case Monthly:
		dom := tpl.Day()
		for i := 0; i <= 12; i++ {
			first := time.Date(from.Year(), from.Month()+time.Month(i), 1, hour, minute, 0, 0, loc)
			day := dom
			if last := DaysIn(first.Year(), first.Month()); day > last {
				day = last
			}
			c := time.Date(first.Year(), first.Month(), day, hour, minute, 0, 0, loc)
			if c.After(after) {
				return c, nil
			}
		}
	default:
		return time.Time{}, fmt.Errorf("unknown recurrence type %q", kind)
	}
	return time.Time{}, fmt.Errorf("could not find next %s occurrence after %s", kind, after.Format(time.RFC3339))
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseRecurrenceDays parses "1,3,5" style weekday lists (0=Sunday..6=Saturday).
func ParseRecurrenceDays(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	seen := map[int]bool{}
	var out []int
	for _, p := range strings.Split(raw, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid day in recurrence: %s", p)
		}
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("day must be between 0 and 6")
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out, nil
}
