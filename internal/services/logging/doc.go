// Package logging builds the process-wide slog logger.
//
// The logger is created once and handed to every service; config reloads
// swap the underlying handler atomically, so held *slog.Logger values pick
// up level and sink changes without restarts.
package logging
