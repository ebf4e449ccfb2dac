package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks cross-field constraints the decoder cannot express. It is
// used both at startup and as the Watch validator, so a bad edit never
// replaces a good running config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Printer.BaseURL) == "" {
		return errors.New("printer.base_url is required")
	}
	if _, err := ParseDurationField("printer.timeout", cfg.Printer.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("engine.error_backoff", cfg.Engine.ErrorBackoff); err != nil {
		return err
	}
	if cfg.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if cfg.Notifier != nil {
		if _, err := ParseDurationField("notifier.timeout", cfg.Notifier.Timeout); err != nil {
			return err
		}
	}
	if cfg.Housekeeping != nil && cfg.Housekeeping.Enabled {
		for path, expr := range map[string]string{
			"housekeeping.status_cron": cfg.Housekeeping.StatusCron,
			"housekeeping.resync_cron": cfg.Housekeeping.ResyncCron,
		} {
			if strings.TrimSpace(expr) == "" {
				continue
			}
			if _, err := cron.ParseStandard(expr); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	return nil
}
