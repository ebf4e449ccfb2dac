package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Printer is the G-code endpoint macros are submitted to.
	Printer PrinterConfig `json:"printer"`

	// Engine controls schedule loop behavior.
	Engine EngineConfig `json:"engine"`

	Storage      *StorageConfig      `json:"storage,omitempty"`
	Notifier     *NotifierConfig     `json:"notifier,omitempty"`
	Housekeeping *HousekeepingConfig `json:"housekeeping,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Pretty  bool        `json:"pretty,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type PrinterConfig struct {
	BaseURL string `json:"base_url"`
	// Timeout is a Go duration string (e.g. "30s", "2m"). Macros execute
	// synchronously, so this bounds the whole macro run.
	Timeout string `json:"timeout,omitempty"`
}

type EngineConfig struct {
	// ErrorBackoff is a Go duration string. A schedule loop sleeps this
	// long after an internal error before retrying. Default "60s".
	ErrorBackoff string `json:"error_backoff,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./schedules.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifierConfig controls the executed-macro notifier.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Buffer     int    `json:"buffer,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// HousekeepingConfig controls the periodic maintenance jobs. Both fields
// are standard cron expressions.
type HousekeepingConfig struct {
	Enabled    bool   `json:"enabled"`
	StatusCron string `json:"status_cron,omitempty"` // default "*/15 * * * *"
	ResyncCron string `json:"resync_cron,omitempty"` // default "0 4 * * *"
}
