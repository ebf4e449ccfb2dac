package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"macroschedd/internal/eventbus"
	"macroschedd/internal/schedule"
	"macroschedd/internal/storage"
)

// New creates an engine. store and bus may be nil (persistence and event
// publication are optional capabilities, not error paths).
func New(cfg Config, log *slog.Logger, clock schedule.Clock, store storage.Store, run Runner, bus eventbus.Bus) *Engine {
	if clock == nil {
		clock = schedule.System()
	}
	return &Engine{
		log:       log,
		cfg:       cfg.withDefaults(),
		clock:     clock,
		store:     store,
		run:       run,
		bus:       bus,
		schedules: map[int64]*schedule.Schedule{},
		nextID:    1,
		loops:     map[int64]*loopHandle{},
	}
}

// Start loads persisted schedules and starts a timer loop for every enabled
// one. A load failure is logged and leaves the engine empty; the process
// still starts.
func (e *Engine) Start(ctx context.Context) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	if e.started {
		return nil
	}
	e.started = true
	// Loops outlive the Start caller's ctx; Stop cancels them. Executions
	// run on this context too, so delete/toggle cancellation can never
	// abort a macro mid-flight.
	e.runCtx, e.runCancel = context.WithCancel(context.Background())

	if e.store != nil {
		st, err := e.store.Load(ctx)
		if err != nil {
			e.log.Error("schedule load failed; starting empty", slog.Any("err", err))
		} else {
			e.adopt(st)
		}
	}

	e.mu.Lock()
	ids := make([]int64, 0, len(e.schedules))
	for id, s := range e.schedules {
		if s.Enabled {
			ids = append(ids, id)
		}
	}
	total := len(e.schedules)
	e.mu.Unlock()

	for _, id := range ids {
		e.startLoop(id)
	}
	e.log.Info("engine started", slog.Int("schedules", total), slog.Int("active", len(ids)))
	return nil
}

// Stop cancels every loop and waits for them to terminate, bounded by ctx.
func (e *Engine) Stop(ctx context.Context) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	if !e.started {
		return
	}
	e.started = false
	start := time.Now()

	e.mu.Lock()
	handles := make([]*loopHandle, 0, len(e.loops))
	for _, h := range e.loops {
		handles = append(handles, h)
	}
	e.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	// Shutdown may abort in-flight executions: the run context dies too.
	if e.runCancel != nil {
		e.runCancel()
	}
	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			e.log.Warn("engine stop timed out waiting for a schedule loop")
			return
		}
	}
	e.log.Info("engine stopped", slog.Duration("took", time.Since(start)))
}

func (e *Engine) adopt(st *storage.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, rec := range st.Schedules {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			e.log.Warn("ignoring schedule with bad key", slog.String("key", key))
			continue
		}
		rec := rec.Clone()
		rec.ID = id
		e.schedules[id] = rec
	}
	if st.NextID > e.nextID {
		e.nextID = st.NextID
	}
	e.log.Info("schedules loaded", slog.Int("count", len(e.schedules)))
}

// startLoop launches the timer loop for id, stopping any stale loop first.
// Callers must hold opMu (not mu): starting waits for the old loop to
// terminate, and the old loop may need mu to get there.
func (e *Engine) startLoop(id int64) {
	e.stopLoop(id)

	ctx, cancel := context.WithCancel(e.runCtx)
	h := &loopHandle{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	e.loops[id] = h
	name := ""
	if s := e.schedules[id]; s != nil {
		name = s.Name
	}
	e.mu.Unlock()

	go e.runLoop(ctx, id, h)
	e.log.Info("schedule started", slog.Int64("id", id), slog.String("name", name))
}

// stopLoop requests cancellation of id's loop, if any, and blocks until the
// loop has confirmed termination. Callers must hold opMu and must not hold
// mu.
func (e *Engine) stopLoop(id int64) {
	e.mu.Lock()
	h := e.loops[id]
	e.mu.Unlock()
	if h == nil {
		return
	}
	h.cancel()
	<-h.done
	e.log.Info("schedule stopped", slog.Int64("id", id))
}

// snapshotLocked builds the durable state. Callers must hold mu.
func (e *Engine) snapshotLocked() *storage.State {
	st := storage.EmptyState()
	st.NextID = e.nextID
	for id, s := range e.schedules {
		st.Schedules[storage.Key(id)] = s.Clone()
	}
	return st
}

// persist writes st to the store, if one is configured. Failures are logged,
// never propagated: the in-memory state is authoritative for the running
// process and is reconciled by a full reload at next startup.
func (e *Engine) persist(st *storage.State) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.store.Save(ctx, st); err != nil {
		e.log.Error("schedule save failed", slog.Any("err", err))
	}
}

// Resync rewrites the durable snapshot from memory. Housekeeping calls it
// periodically so a missed best-effort save eventually converges.
func (e *Engine) Resync() {
	e.mu.Lock()
	st := e.snapshotLocked()
	e.mu.Unlock()
	e.persist(st)
}

func (e *Engine) publishExecuted(ev ExecutedEvent) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: EventExecuted, Time: ev.Time, Data: ev})
}
