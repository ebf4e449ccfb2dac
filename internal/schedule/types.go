package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Type identifies how a schedule recurs. It is fixed at creation.
type Type string

const (
	TypeOnce     Type = "once"
	TypeDaily    Type = "daily"
	TypeWeekly   Type = "weekly"
	TypeInterval Type = "interval"
	TypeCron     Type = "cron"
)

// Timestamp layouts accepted for datetime/next_run fields. RFC 3339 is what we
// write; the bare form is what older records (and hand-written configs) carry.
const (
	layoutRFC3339 = time.RFC3339
	layoutBare    = "2006-01-02T15:04:05"
)

// Schedule is one named macro schedule. The JSON shape is the durable record
// shape and must stay stable.
//
// Type-specific fields are immutable once set:
//
//	once:     Datetime
//	daily:    Time
//	weekly:   Time + Days
//	interval: IntervalMinutes
//	cron:     CronExpression
type Schedule struct {
	ID     int64             `json:"id"`
	Name   string            `json:"name"`
	Macro  string            `json:"macro"`
	Params map[string]string `json:"params,omitempty"`
	Type   Type              `json:"schedule_type"`

	Datetime        string `json:"datetime,omitempty"`         // absolute timestamp
	Time            string `json:"time,omitempty"`             // "HH:MM", 24-hour
	Days            []int  `json:"days,omitempty"`             // 0=Monday .. 6=Sunday
	IntervalMinutes int    `json:"interval_minutes,omitempty"` // > 0
	CronExpression  string `json:"cron_expression,omitempty"`  // 5 fields

	Enabled bool `json:"enabled"`

	// NextRun is the authoritative fire-at timestamp. Empty means
	// "not scheduled". It may be stale (in the past) only between a loop
	// wake-up and the following recompute.
	NextRun string `json:"next_run,omitempty"`
}

// Validate checks that the required type-specific fields are present and well
// formed. It is called once at creation; records loaded from storage are
// trusted as-is (a bad persisted field surfaces as a recompute error at fire
// time instead).
func (s *Schedule) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(s.Macro) == "" {
		return fmt.Errorf("macro is required")
	}
	switch s.Type {
	case TypeOnce:
		if strings.TrimSpace(s.Datetime) == "" {
			return fmt.Errorf("once schedule requires datetime")
		}
		if _, err := ParseTimestamp(s.Datetime); err != nil {
			return fmt.Errorf("invalid datetime %q: %w", s.Datetime, err)
		}
	case TypeDaily:
		if _, _, err := ParseHHMM(s.Time); err != nil {
			return fmt.Errorf("daily schedule: %w", err)
		}
	case TypeWeekly:
		if _, _, err := ParseHHMM(s.Time); err != nil {
			return fmt.Errorf("weekly schedule: %w", err)
		}
		if len(s.Days) == 0 {
			return fmt.Errorf("weekly schedule requires at least one day")
		}
		for _, d := range s.Days {
			if d < 0 || d > 6 {
				return fmt.Errorf("weekly schedule: day %d out of range 0..6", d)
			}
		}
	case TypeInterval:
		if s.IntervalMinutes <= 0 {
			return fmt.Errorf("interval schedule requires interval_minutes > 0")
		}
	case TypeCron:
		if _, err := ParseCron(s.CronExpression); err != nil {
			return fmt.Errorf("cron schedule: %w", err)
		}
	default:
		return fmt.Errorf("unknown schedule_type %q", s.Type)
	}
	return nil
}

// Command composes the macro invocation: the macro name followed by each
// parameter as "key=value", space separated. Keys are sorted so the composed
// string is stable.
func (s *Schedule) Command() string {
	if len(s.Params) == 0 {
		return s.Macro
	}
	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(s.Macro)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(s.Params[k])
	}
	return strings.TrimSpace(b.String())
}

// Clone returns a deep copy.
func (s *Schedule) Clone() *Schedule {
	cp := *s
	if s.Params != nil {
		cp.Params = make(map[string]string, len(s.Params))
		for k, v := range s.Params {
			cp.Params[k] = v
		}
	}
	if s.Days != nil {
		cp.Days = append([]int(nil), s.Days...)
	}
	return &cp
}

// ParseTimestamp parses a stored timestamp. RFC 3339 is tried first; the bare
// layout (no zone) is interpreted in local time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(layoutRFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(layoutBare, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

// FormatTimestamp renders a timestamp the way new records store it.
func FormatTimestamp(t time.Time) string {
	return t.Format(layoutRFC3339)
}
