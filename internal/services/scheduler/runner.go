package scheduler

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"macroschedd/internal/schedule"
)

// runLoop is one schedule's timer loop: wait until next_run, execute,
// reschedule (or disable for once schedules), repeat. It terminates on
// cancellation, when the schedule disappears or is disabled, or after a
// one-shot completes.
func (e *Engine) runLoop(ctx context.Context, id int64, h *loopHandle) {
	defer func() {
		e.mu.Lock()
		if e.loops[id] == h {
			delete(e.loops, id)
		}
		e.mu.Unlock()
		close(h.done)
	}()

	log := e.log.With(slog.Int64("id", id))

	for {
		if ctx.Err() != nil {
			return
		}

		e.mu.Lock()
		cur := e.schedules[id]
		if cur == nil || !cur.Enabled || cur.NextRun == "" {
			e.mu.Unlock()
			return
		}
		snap := cur.Clone()
		e.mu.Unlock()

		next, err := schedule.ParseTimestamp(snap.NextRun)
		if err != nil {
			log.Error("bad stored next_run; backing off", slog.String("next_run", snap.NextRun), slog.Any("err", err))
			if !e.backoff(ctx) {
				return
			}
			continue
		}

		// WAITING. The only suspension point of an iteration. A next_run
		// already in the past (a once schedule created with a past
		// datetime, or a wake-up just behind the clock) proceeds
		// immediately.
		if wait := next.Sub(e.clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-e.clock.After(wait):
			}
		}
		if ctx.Err() != nil {
			return
		}

		// EXECUTING. Runs on the engine's context, not the loop's, so a
		// concurrent delete/toggle-off never aborts the call mid-flight.
		command := snap.Command()
		firedAt := e.clock.Now()
		if err := e.run.Run(e.runCtx, command); err != nil {
			log.Warn("macro execution failed",
				slog.String("name", snap.Name),
				slog.String("macro", snap.Macro),
				slog.Any("err", err))
		} else {
			log.Info("macro executed", slog.String("name", snap.Name), slog.String("command", command))
			e.publishExecuted(ExecutedEvent{
				RunID:      uuid.NewString(),
				ScheduleID: id,
				Schedule:   snap.Name,
				Command:    command,
				Time:       firedAt,
			})
		}
		if ctx.Err() != nil {
			return
		}

		// RESCHEDULING. A failed attempt still counts as an attempt: the
		// schedule moves on (or a one-shot disarms) either way.
		if snap.Type == schedule.TypeOnce {
			e.mu.Lock()
			if cur := e.schedules[id]; cur != nil {
				cur.Enabled = false
			}
			st := e.snapshotLocked()
			e.mu.Unlock()
			e.persist(st)
			log.Info("one-shot schedule completed", slog.String("name", snap.Name))
			return
		}

		nextStr, rerr := e.nextRun(snap)
		if rerr != nil {
			log.Error("next-run recompute failed; backing off", slog.Any("err", rerr))
			if !e.backoff(ctx) {
				return
			}
			continue
		}

		e.mu.Lock()
		if cur := e.schedules[id]; cur != nil && cur.Enabled {
			cur.NextRun = nextStr
		}
		st := e.snapshotLocked()
		e.mu.Unlock()
		e.persist(st)
	}
}

// backoff sleeps the configured error backoff. It returns false if the loop
// was cancelled while sleeping.
func (e *Engine) backoff(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-e.clock.After(e.cfg.ErrorBackoff):
		return true
	}
}
