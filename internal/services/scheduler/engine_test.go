package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"macroschedd/internal/eventbus"
	"macroschedd/internal/schedule"
	"macroschedd/internal/storage"
)

// memStore keeps the last saved state in memory.
type memStore struct {
	mu    sync.Mutex
	st    *storage.State
	saves int
}

func (m *memStore) Load(ctx context.Context) (*storage.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st == nil {
		return storage.EmptyState(), nil
	}
	return m.st, nil
}

func (m *memStore) Save(ctx context.Context, st *storage.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = st
	m.saves++
	return nil
}

func (m *memStore) Close() error { return nil }

// recordingRunner captures executed commands. If gate is set the run blocks
// until the gate is closed; started is signalled when a run begins.
type recordingRunner struct {
	runs    chan string
	started chan struct{}
	gate    chan struct{}
	err     error
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{runs: make(chan string, 32)}
}

func (r *recordingRunner) Run(ctx context.Context, command string) error {
	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.runs <- command
	return r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startOfDay() time.Time {
	// Monday.
	return time.Date(2025, time.January, 6, 8, 0, 0, 0, time.Local)
}

func newTestEngine(t *testing.T, clk schedule.Clock, st storage.Store, run Runner, bus eventbus.Bus) *Engine {
	t.Helper()
	e := New(Config{ErrorBackoff: time.Second}, testLogger(), clk, st, run, bus)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Stop(ctx)
	})
	return e
}

// awaitRun nudges the fake clock forward until the runner reports a run.
func awaitRun(t *testing.T, clk *schedule.FakeClock, runs <-chan string, step time.Duration) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cmd := <-runs:
			return cmd
		case <-deadline:
			t.Fatal("timed out waiting for a macro run")
		default:
			clk.Advance(step)
			time.Sleep(time.Millisecond)
		}
	}
}

func awaitCondition(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAddValidation(t *testing.T) {
	e := newTestEngine(t, schedule.NewFakeClock(startOfDay()), nil, newRecordingRunner(), nil)

	bad := []AddRequest{
		{Name: "x", Macro: "M", Type: "sometimes"},
		{Name: "x", Macro: "M", Type: schedule.TypeOnce},
		{Name: "x", Macro: "M", Type: schedule.TypeOnce, Datetime: "next tuesday"},
		{Name: "x", Macro: "M", Type: schedule.TypeDaily, Time: "9am"},
		{Name: "x", Macro: "M", Type: schedule.TypeWeekly, Time: "09:00", Days: []int{7}},
		{Name: "x", Macro: "M", Type: schedule.TypeInterval, IntervalMinutes: 0},
		{Name: "x", Macro: "M", Type: schedule.TypeCron, CronExpression: "* * * *"},
		{Name: "", Macro: "M", Type: schedule.TypeInterval, IntervalMinutes: 5},
		{Name: "x", Macro: "", Type: schedule.TypeInterval, IntervalMinutes: 5},
	}
	for i, req := range bad {
		if _, err := e.Add(req); err == nil {
			t.Errorf("request %d: expected a validation error", i)
		}
	}
	if got := len(e.List()); got != 0 {
		t.Fatalf("rejected requests must not be stored, got %d schedules", got)
	}
}

func TestAddAssignsMonotonicIDs(t *testing.T) {
	e := newTestEngine(t, schedule.NewFakeClock(startOfDay()), nil, newRecordingRunner(), nil)

	a, err := e.Add(AddRequest{Name: "a", Macro: "A", Type: schedule.TypeInterval, IntervalMinutes: 60})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Add(AddRequest{Name: "b", Macro: "B", Type: schedule.TypeInterval, IntervalMinutes: 60})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("ids = %d, %d; want 1, 2", a.ID, b.ID)
	}

	if _, err := e.Delete(b.ID); err != nil {
		t.Fatal(err)
	}
	c, err := e.Add(AddRequest{Name: "c", Macro: "C", Type: schedule.TypeInterval, IntervalMinutes: 60})
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != 3 {
		t.Fatalf("id after delete = %d; deleted ids must never be reused", c.ID)
	}
}

func TestOncePastFiresImmediatelyAndDisables(t *testing.T) {
	clk := schedule.NewFakeClock(startOfDay())
	run := newRecordingRunner()
	st := &memStore{}
	e := newTestEngine(t, clk, st, run, nil)

	past := schedule.FormatTimestamp(startOfDay().Add(-time.Hour))
	s, err := e.Add(AddRequest{
		Name: "warmup", Macro: "PREHEAT",
		Params: map[string]string{"BED": "60"},
		Type:   schedule.TypeOnce, Datetime: past,
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case cmd := <-run.runs:
		if cmd != "PREHEAT BED=60" {
			t.Fatalf("command = %q", cmd)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("past one-shot did not fire immediately")
	}

	awaitCondition(t, "schedule to disarm", func() bool {
		list := e.List()
		return len(list) == 1 && !list[0].Enabled
	})

	// It must stay disarmed: advancing time produces no further runs.
	clk.Advance(48 * time.Hour)
	select {
	case cmd := <-run.runs:
		t.Fatalf("completed one-shot ran again: %q", cmd)
	case <-time.After(50 * time.Millisecond):
	}

	st.mu.Lock()
	rec := st.st.Schedules[storage.Key(s.ID)]
	st.mu.Unlock()
	if rec == nil || rec.Enabled {
		t.Fatal("completed one-shot must be persisted as disabled")
	}
}

func TestIntervalReschedules(t *testing.T) {
	clk := schedule.NewFakeClock(startOfDay())
	run := newRecordingRunner()
	e := newTestEngine(t, clk, nil, run, nil)

	if _, err := e.Add(AddRequest{Name: "poll", Macro: "QUERY", Type: schedule.TypeInterval, IntervalMinutes: 5}); err != nil {
		t.Fatal(err)
	}

	awaitRun(t, clk, run.runs, time.Minute)
	awaitRun(t, clk, run.runs, time.Minute)

	list := e.List()
	next, err := schedule.ParseTimestamp(list[0].NextRun)
	if err != nil {
		t.Fatal(err)
	}
	if !next.After(startOfDay()) {
		t.Fatalf("next_run %v did not advance", next)
	}
}

func TestExecutionFailureStillReschedules(t *testing.T) {
	clk := schedule.NewFakeClock(startOfDay())
	run := newRecordingRunner()
	run.err = errors.New("printer offline")
	e := newTestEngine(t, clk, nil, run, nil)

	if _, err := e.Add(AddRequest{Name: "poll", Macro: "QUERY", Type: schedule.TypeInterval, IntervalMinutes: 5}); err != nil {
		t.Fatal(err)
	}

	// A failed attempt consumes the slot and the next one is still armed.
	awaitRun(t, clk, run.runs, time.Minute)
	awaitRun(t, clk, run.runs, time.Minute)
}

func TestDeleteWaitsForInFlightExecution(t *testing.T) {
	clk := schedule.NewFakeClock(startOfDay())
	run := newRecordingRunner()
	run.started = make(chan struct{}, 1)
	run.gate = make(chan struct{})
	e := newTestEngine(t, clk, nil, run, nil)

	s, err := e.Add(AddRequest{
		Name: "warmup", Macro: "PREHEAT", Type: schedule.TypeOnce,
		Datetime: schedule.FormatTimestamp(startOfDay().Add(-time.Minute)),
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-run.started:
	case <-time.After(5 * time.Second):
		t.Fatal("execution did not start")
	}

	deleted := make(chan error, 1)
	go func() {
		_, err := e.Delete(s.ID)
		deleted <- err
	}()

	select {
	case <-deleted:
		t.Fatal("Delete returned while the macro was still executing")
	case <-time.After(50 * time.Millisecond):
	}

	close(run.gate)
	select {
	case err := <-deleted:
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Delete did not return after the execution finished")
	}
	if got := len(e.List()); got != 0 {
		t.Fatalf("schedule still listed after delete, %d entries", got)
	}
}

func TestDeleteUnknown(t *testing.T) {
	e := newTestEngine(t, schedule.NewFakeClock(startOfDay()), nil, newRecordingRunner(), nil)
	if _, err := e.Delete(42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
	if _, err := e.Toggle(42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
}

func TestToggleStopsAndRestarts(t *testing.T) {
	clk := schedule.NewFakeClock(startOfDay())
	run := newRecordingRunner()
	e := newTestEngine(t, clk, nil, run, nil)

	s, err := e.Add(AddRequest{Name: "lights", Macro: "LIGHTS_ON", Type: schedule.TypeDaily, Time: "09:00"})
	if err != nil {
		t.Fatal(err)
	}

	off, err := e.Toggle(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if off.Enabled {
		t.Fatal("first toggle should disable")
	}

	// Disabled schedules never fire.
	clk.Advance(3 * time.Hour)
	select {
	case cmd := <-run.runs:
		t.Fatalf("disabled schedule ran: %q", cmd)
	case <-time.After(50 * time.Millisecond):
	}

	on, err := e.Toggle(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !on.Enabled {
		t.Fatal("second toggle should re-enable")
	}
	// Re-enabling recomputes next_run from the current clock; it is now
	// tomorrow 09:00, strictly in the future.
	next, err := schedule.ParseTimestamp(on.NextRun)
	if err != nil {
		t.Fatal(err)
	}
	if !next.After(clk.Now()) {
		t.Fatalf("recomputed next_run %v is not in the future (now %v)", next, clk.Now())
	}

	cmd := awaitRun(t, clk, run.runs, time.Hour)
	if cmd != "LIGHTS_ON" {
		t.Fatalf("command = %q", cmd)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	clk := schedule.NewFakeClock(startOfDay())
	st := &memStore{}

	e1 := New(Config{}, testLogger(), clk, st, newRecordingRunner(), nil)
	if err := e1.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	a, err := e1.Add(AddRequest{Name: "lights", Macro: "LIGHTS_ON", Type: schedule.TypeDaily, Time: "21:30"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e1.Add(AddRequest{Name: "poll", Macro: "QUERY", Params: map[string]string{"T": "0"}, Type: schedule.TypeInterval, IntervalMinutes: 15})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e1.Toggle(b.ID); err != nil {
		t.Fatal(err)
	}
	e1.Stop(context.Background())

	e2 := New(Config{}, testLogger(), clk, st, newRecordingRunner(), nil)
	if err := e2.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e2.Stop(context.Background())

	list := e2.List()
	if len(list) != 2 {
		t.Fatalf("reloaded %d schedules; want 2", len(list))
	}
	if list[0].ID != a.ID || list[0].Name != "lights" || !list[0].Enabled || list[0].NextRun != a.NextRun {
		t.Fatalf("schedule 1 did not survive the round trip: %+v", list[0])
	}
	if list[1].ID != b.ID || list[1].Enabled || list[1].Params["T"] != "0" {
		t.Fatalf("schedule 2 did not survive the round trip: %+v", list[1])
	}

	c, err := e2.Add(AddRequest{Name: "c", Macro: "C", Type: schedule.TypeInterval, IntervalMinutes: 60})
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != 3 {
		t.Fatalf("id counter not restored, new id = %d; want 3", c.ID)
	}
}

func TestExecutedEventPublished(t *testing.T) {
	clk := schedule.NewFakeClock(startOfDay())
	run := newRecordingRunner()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	e := newTestEngine(t, clk, nil, run, bus)
	if _, err := e.Add(AddRequest{
		Name: "warmup", Macro: "PREHEAT", Params: map[string]string{"BED": "60"},
		Type: schedule.TypeOnce, Datetime: schedule.FormatTimestamp(startOfDay().Add(-time.Minute)),
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Type != EventExecuted {
			t.Fatalf("event type = %q", ev.Type)
		}
		data, ok := ev.Data.(ExecutedEvent)
		if !ok {
			t.Fatalf("event data = %T", ev.Data)
		}
		if data.Command != "PREHEAT BED=60" || data.Schedule != "warmup" || data.RunID == "" {
			t.Fatalf("unexpected payload: %+v", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no executed event published")
	}
}

func TestSnapshotCounts(t *testing.T) {
	clk := schedule.NewFakeClock(startOfDay())
	e := newTestEngine(t, clk, nil, newRecordingRunner(), nil)

	a, _ := e.Add(AddRequest{Name: "a", Macro: "A", Type: schedule.TypeDaily, Time: "10:00"})
	if _, err := e.Add(AddRequest{Name: "b", Macro: "B", Type: schedule.TypeDaily, Time: "09:00"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Toggle(a.ID); err != nil {
		t.Fatal(err)
	}

	snap := e.Snapshot()
	if snap.Total != 2 || snap.Active != 1 || snap.NextID != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Upcoming) != 1 || snap.Upcoming[0].Name != "b" {
		t.Fatalf("upcoming = %+v", snap.Upcoming)
	}
}

func TestRenderTextSummary(t *testing.T) {
	clk := schedule.NewFakeClock(startOfDay())
	e := newTestEngine(t, clk, nil, newRecordingRunner(), nil)

	if got := e.RenderTextSummary(); got != "No scheduled macros configured" {
		t.Fatalf("empty summary = %q", got)
	}

	a, err := e.Add(AddRequest{Name: "lights", Macro: "LIGHTS_ON", Type: schedule.TypeDaily, Time: "21:30"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Add(AddRequest{Name: "poll", Macro: "QUERY", Type: schedule.TypeInterval, IntervalMinutes: 15}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Toggle(a.ID); err != nil {
		t.Fatal(err)
	}

	out := e.RenderTextSummary()
	for _, want := range []string{
		"=== Scheduled Macros ===",
		fmt.Sprintf("[%d] lights", a.ID),
		"Macro:    LIGHTS_ON",
		"Status:   disabled",
		"Status:   active",
		"Total: 1/2 active",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
