// Package schedule holds the schedule data model and the pure next-run
// calculators, including a minimal 5-field cron evaluator.
//
// Everything here is deterministic given a "now" timestamp. The engine in
// internal/services/scheduler owns all state and I/O; this package owns none.
//
// # Conventions
//
//   - Weekly schedules use Monday-based weekday numbers (0=Monday .. 6=Sunday).
//   - Cron day-of-week uses the cron convention (0=Sunday .. 6=Saturday).
//   - Timestamps are carried as strings in RFC 3339 (or the bare
//     "2006-01-02T15:04:05" form older records used) and parsed on demand.
//   - A candidate equal to "now" is never accepted as the next run; it must be
//     strictly later, so second-granularity timestamps cannot re-fire
//     immediately.
package schedule
