// Package notify delivers macro execution notifications.
//
// It subscribes to the event bus and forwards each executed-macro event to
// the log and, when configured, to an HTTP webhook. Delivery is best-effort
// and rate limited; the scheduling engine never waits on it.
package notify

import (
	"time"
)

type Config struct {
	Enabled    bool
	WebhookURL string
	// RatePerSec caps webhook deliveries; excess events are dropped.
	RatePerSec int
	Buffer     int
	Timeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// payload is the webhook body for one executed macro.
type payload struct {
	RunID    string    `json:"run_id"`
	Schedule string    `json:"schedule"`
	Command  string    `json:"command"`
	Time     time.Time `json:"time"`
}
