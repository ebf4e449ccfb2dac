package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NextDaily returns today at hhmm if that moment is still strictly after now,
// otherwise tomorrow at hhmm.
func NextDaily(now time.Time, hhmm string) (time.Time, error) {
	h, m, err := ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

// NextWeekly scans the next 7 calendar days starting today and returns the
// first candidate at hhmm whose weekday (0=Monday .. 6=Sunday) is in days and
// which lies strictly after now.
//
// An empty days set falls back to daily semantics; with a non-empty set every
// weekday recurs within 7 days, so the trailing "return now" is a degenerate
// fallback that is never reached in practice.
func NextWeekly(now time.Time, hhmm string, days []int) (time.Time, error) {
	if len(days) == 0 {
		return NextDaily(now, hhmm)
	}
	h, m, err := ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	wanted := make(map[int]bool, len(days))
	for _, d := range days {
		wanted[d] = true
	}
	for i := 0; i < 7; i++ {
		day := now.AddDate(0, 0, i)
		if !wanted[mondayWeekday(day)] {
			continue
		}
		next := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, now.Location())
		if next.After(now) {
			return next, nil
		}
	}
	return now, nil
}

// NextInterval returns now plus the given number of minutes.
func NextInterval(now time.Time, minutes int) time.Time {
	return now.Add(time.Duration(minutes) * time.Minute)
}

// ParseHHMM parses a 24-hour "HH:MM" string.
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// mondayWeekday converts Go's Sunday-based weekday to the Monday-based
// numbering the weekly schedule uses.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
