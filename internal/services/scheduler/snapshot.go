package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"macroschedd/internal/schedule"
)

// Snapshot reports the engine's current state for status surfaces and
// housekeeping logs.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Total:   len(e.schedules),
		Running: len(e.loops),
		NextID:  e.nextID,
	}
	for _, s := range e.schedules {
		if !s.Enabled {
			continue
		}
		snap.Active++
		if s.NextRun == "" {
			continue
		}
		t, err := schedule.ParseTimestamp(s.NextRun)
		if err != nil {
			continue
		}
		snap.Upcoming = append(snap.Upcoming, UpcomingRun{
			ID:      s.ID,
			Name:    s.Name,
			Macro:   s.Macro,
			Type:    s.Type,
			NextRun: t,
		})
	}
	sort.Slice(snap.Upcoming, func(i, j int) bool {
		if !snap.Upcoming[i].NextRun.Equal(snap.Upcoming[j].NextRun) {
			return snap.Upcoming[i].NextRun.Before(snap.Upcoming[j].NextRun)
		}
		return snap.Upcoming[i].ID < snap.Upcoming[j].ID
	})
	return snap
}

// RenderTextSummary formats the schedule list for humans.
func (e *Engine) RenderTextSummary() string {
	list := e.List()
	if len(list) == 0 {
		return "No scheduled macros configured"
	}

	now := e.clock.Now()
	var b strings.Builder
	b.WriteString("=== Scheduled Macros ===\n")

	active := 0
	for _, s := range list {
		status := "disabled"
		if s.Enabled {
			status = "active"
			active++
		}
		fmt.Fprintf(&b, "\n[%d] %s\n", s.ID, s.Name)
		fmt.Fprintf(&b, "    Macro:    %s\n", s.Macro)
		fmt.Fprintf(&b, "    Type:     %s\n", s.Type)
		fmt.Fprintf(&b, "    Status:   %s\n", status)
		fmt.Fprintf(&b, "    Next run: %s\n", describeNextRun(s, now))
	}
	fmt.Fprintf(&b, "\nTotal: %d/%d active\n", active, len(list))
	return b.String()
}

func describeNextRun(s *schedule.Schedule, now time.Time) string {
	if !s.Enabled {
		return "n/a"
	}
	if s.NextRun == "" {
		return "unknown"
	}
	t, err := schedule.ParseTimestamp(s.NextRun)
	if err != nil {
		return s.NextRun
	}
	return fmt.Sprintf("%s (%s)", t.Format("2006-01-02 15:04"), humanize.RelTime(t, now, "ago", "from now"))
}
