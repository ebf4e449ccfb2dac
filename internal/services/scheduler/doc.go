// Package scheduler is the scheduling engine: it owns the schedule set and
// runs one timer loop per enabled schedule.
//
// # Operations
//
// The engine exposes five operations to any transport wrapper: List, Add,
// Delete, Toggle and RenderTextSummary. Validation and not-found failures
// surface to the caller; persistence and execution failures are contained
// and logged.
//
// # Concurrency
//
// Every enabled schedule gets its own goroutine that sleeps until the
// schedule's next run, executes the macro, recomputes the next run, persists,
// and repeats. Mutating operations are serialized; each loop touches shared
// state only under a short-lived lock. Cancellation (delete, toggle-off,
// engine stop) is delivered through the loop's context and observed at
// suspension points only — an in-flight macro execution always finishes, and
// the cancelling caller blocks until the loop has confirmed termination.
//
// # Failure containment
//
// A loop iteration that fails internally (for example a stored cron
// expression that no longer parses) logs the error, sleeps a fixed backoff
// and retries; one schedule's persistent failure neither vanishes silently
// nor takes down its siblings.
package scheduler
