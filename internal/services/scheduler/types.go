package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"macroschedd/internal/eventbus"
	"macroschedd/internal/schedule"
	"macroschedd/internal/storage"
)

// ErrNotFound is returned by Delete and Toggle for unknown schedule ids.
var ErrNotFound = errors.New("schedule not found")

// EventExecuted is published on the bus after each successful macro run.
const EventExecuted = "macro.executed"

// ExecutedEvent is the payload of an EventExecuted bus event.
type ExecutedEvent struct {
	RunID      string    `json:"run_id"`
	ScheduleID int64     `json:"schedule_id"`
	Schedule   string    `json:"schedule"`
	Command    string    `json:"command"`
	Time       time.Time `json:"time"`
}

// Runner executes a composed macro invocation ("MACRO KEY=value ...").
// The invocation protocol behind it is opaque to the engine.
type Runner interface {
	Run(ctx context.Context, command string) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, command string) error

func (f RunnerFunc) Run(ctx context.Context, command string) error { return f(ctx, command) }

// Config controls the engine.
type Config struct {
	// ErrorBackoff is how long a schedule loop sleeps after an internal
	// iteration error before retrying. Defaults to 60s.
	ErrorBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 60 * time.Second
	}
	return c
}

// loopHandle is the cancellation handle for one schedule's timer loop. It is
// created when the loop starts and removed from the engine's table once the
// loop has confirmed termination.
type loopHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine owns the schedule store. No other component reads or writes it.
type Engine struct {
	log   *slog.Logger
	cfg   Config
	clock schedule.Clock
	store storage.Store // optional; nil disables persistence
	run   Runner
	bus   eventbus.Bus // optional

	// opMu serializes mutating operations so two operations on the same id
	// can never interleave. It is never held while waiting for a loop to
	// terminate together with mu.
	opMu sync.Mutex

	// mu guards the maps below. Loops hold it only for short
	// read-modify-write sections, never across a sleep, execution or save.
	mu        sync.Mutex
	schedules map[int64]*schedule.Schedule
	nextID    int64
	loops     map[int64]*loopHandle

	runCtx    context.Context
	runCancel context.CancelFunc
	started   bool
}

// Snapshot is a read-only view of the engine for status reporting.
type Snapshot struct {
	Total    int
	Active   int
	Running  int // loops currently alive
	NextID   int64
	Upcoming []UpcomingRun
}

// UpcomingRun pairs a schedule with its parsed next-run time.
type UpcomingRun struct {
	ID      int64
	Name    string
	Macro   string
	Type    schedule.Type
	NextRun time.Time
}
