package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpr is a parsed 5-field cron expression:
//
//	minute hour day-of-month month day-of-week
//
// Supported syntax per field: "*", a literal integer, or "*/N" (every N
// units, matched as value % N == 0). The day-of-week field additionally
// accepts a comma-separated list of integers in cron convention
// (0=Sunday .. 6=Saturday). Day-of-month and month support only "*" or a
// single literal; lists and steps there are rejected at parse time.
type CronExpr struct {
	minute cronField
	hour   cronField
	dom    cronField // literal or any only
	month  cronField // literal or any only
	dow    []int     // nil means any

	raw string
}

type cronField struct {
	any     bool
	step    int // > 0 for */N
	literal int
}

func (f cronField) matches(v int) bool {
	switch {
	case f.any:
		return true
	case f.step > 0:
		return v%f.step == 0
	default:
		return v == f.literal
	}
}

// values enumerates the matching values in [0, limit), ascending.
func (f cronField) values(limit int) []int {
	if !f.any && f.step == 0 {
		return []int{f.literal}
	}
	out := make([]int, 0, limit)
	for v := 0; v < limit; v++ {
		if f.matches(v) {
			out = append(out, v)
		}
	}
	return out
}

// ParseCron parses and validates a cron expression. An expression that does
// not have exactly 5 whitespace-separated fields, or whose fields use
// unsupported syntax, is rejected here so callers can surface it as a
// creation-time validation error rather than a fire-time surprise.
func ParseCron(expr string) (*CronExpr, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	minute, err := parseCronField(fields[0], 0, 59, true)
	if err != nil {
		return nil, fmt.Errorf("cron minute field: %w", err)
	}
	hour, err := parseCronField(fields[1], 0, 23, true)
	if err != nil {
		return nil, fmt.Errorf("cron hour field: %w", err)
	}
	dom, err := parseCronField(fields[2], 1, 31, false)
	if err != nil {
		return nil, fmt.Errorf("cron day-of-month field: %w", err)
	}
	month, err := parseCronField(fields[3], 1, 12, false)
	if err != nil {
		return nil, fmt.Errorf("cron month field: %w", err)
	}
	dow, err := parseCronDOW(fields[4])
	if err != nil {
		return nil, fmt.Errorf("cron day-of-week field: %w", err)
	}

	return &CronExpr{
		minute: minute,
		hour:   hour,
		dom:    dom,
		month:  month,
		dow:    dow,
		raw:    strings.Join(fields, " "),
	}, nil
}

func parseCronField(s string, min, max int, allowStep bool) (cronField, error) {
	if s == "*" {
		return cronField{any: true}, nil
	}
	if strings.HasPrefix(s, "*/") {
		if !allowStep {
			return cronField{}, fmt.Errorf("step values are not supported in %q", s)
		}
		n, err := strconv.Atoi(s[2:])
		if err != nil || n <= 0 {
			return cronField{}, fmt.Errorf("invalid step %q", s)
		}
		return cronField{step: n}, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return cronField{}, fmt.Errorf("invalid value %q", s)
	}
	if v < min || v > max {
		return cronField{}, fmt.Errorf("value %d out of range %d..%d", v, min, max)
	}
	return cronField{literal: v}, nil
}

func parseCronDOW(s string) ([]int, error) {
	if s == "*" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", p)
		}
		if v < 0 || v > 6 {
			return nil, fmt.Errorf("value %d out of range 0..6", v)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	return out, nil
}

// Next returns the first matching timestamp strictly after now.
//
// It scans candidate calendar days forward from today for up to 366 days.
// Days whose month, day-of-month, or day-of-week fields do not match are
// skipped; on the first matching day, every (hour, minute) combination is
// tried ascending and the first strictly-future one wins. If the whole scan
// is exhausted (an expression that matches no real date, e.g. day 31 of a
// 30-day month schedule), now+1day is returned as a defined fallback instead
// of failing.
func (e *CronExpr) Next(now time.Time) time.Time {
	hours := e.hour.values(24)
	minutes := e.minute.values(60)

	for daysAhead := 0; daysAhead < 366; daysAhead++ {
		day := now.AddDate(0, 0, daysAhead)

		if !e.month.matches(int(day.Month())) {
			continue
		}
		if !e.dom.matches(day.Day()) {
			continue
		}
		if e.dow != nil && !containsInt(e.dow, cronWeekday(day)) {
			continue
		}

		for _, h := range hours {
			for _, m := range minutes {
				candidate := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, now.Location())
				if candidate.After(now) {
					return candidate
				}
			}
		}
	}
	return now.AddDate(0, 0, 1)
}

// String returns the normalized expression.
func (e *CronExpr) String() string { return e.raw }

// cronWeekday maps a day to cron's Sunday-based numbering. The weekly
// schedule's Monday-based weekday w maps via (w+1)%7, which collapses to Go's
// own time.Weekday numbering.
func cronWeekday(t time.Time) int {
	return (mondayWeekday(t) + 1) % 7
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
