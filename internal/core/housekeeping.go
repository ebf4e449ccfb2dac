package core

import (
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"macroschedd/internal/config"
	"macroschedd/internal/services/scheduler"
)

const (
	defaultStatusCron = "*/15 * * * *"
	defaultResyncCron = "0 4 * * *"
)

// housekeeper runs the periodic maintenance jobs: a status line for the log
// and a daily storage resync.
type housekeeper struct {
	c      *cron.Cron
	log    *slog.Logger
	engine *scheduler.Engine
}

func newHousekeeper(cfg *config.HousekeepingConfig, engine *scheduler.Engine, log *slog.Logger) *housekeeper {
	h := &housekeeper{log: log, engine: engine}
	if cfg == nil || !cfg.Enabled {
		return h
	}

	statusSpec := cfg.StatusCron
	if strings.TrimSpace(statusSpec) == "" {
		statusSpec = defaultStatusCron
	}
	resyncSpec := cfg.ResyncCron
	if strings.TrimSpace(resyncSpec) == "" {
		resyncSpec = defaultResyncCron
	}

	c := cron.New()
	if _, err := c.AddFunc(statusSpec, h.logStatus); err != nil {
		log.Warn("bad status_cron; job disabled", slog.String("spec", statusSpec), slog.Any("err", err))
	}
	if _, err := c.AddFunc(resyncSpec, h.resync); err != nil {
		log.Warn("bad resync_cron; job disabled", slog.String("spec", resyncSpec), slog.Any("err", err))
	}
	h.c = c
	return h
}

func (h *housekeeper) Start() {
	if h.c != nil {
		h.c.Start()
	}
}

func (h *housekeeper) Stop() {
	if h.c != nil {
		<-h.c.Stop().Done()
	}
}

func (h *housekeeper) logStatus() {
	snap := h.engine.Snapshot()
	attrs := []any{
		slog.Int("total", snap.Total),
		slog.Int("active", snap.Active),
		slog.Int("running", snap.Running),
	}
	if len(snap.Upcoming) > 0 {
		next := snap.Upcoming[0]
		attrs = append(attrs,
			slog.String("next", next.Name),
			slog.String("next_in", humanize.Time(next.NextRun)))
	}
	h.log.Info("engine status", attrs...)
}

func (h *housekeeper) resync() {
	h.engine.Resync()
	h.log.Debug("storage resynced")
}
