// Package core assembles the daemon: config, logging, storage, the
// scheduling engine, the notifier, and housekeeping.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"macroschedd/internal/config"
	"macroschedd/internal/eventbus"
	"macroschedd/internal/executor"
	"macroschedd/internal/services/logging"
	"macroschedd/internal/services/notify"
	"macroschedd/internal/services/scheduler"
	"macroschedd/internal/storage"
	logx "macroschedd/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logging.Service
	log    *slog.Logger

	store    storage.Store
	bus      eventbus.Bus
	engine   *scheduler.Engine
	notifier *notify.Service
	keeper   *housekeeper

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New parses and validates the config and builds the logger. The rest of the
// services are wired in Start.
func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	mgr.SetValidator(func(ctx context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	logSvc, log := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
		File: logging.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(logx.NewConsole(cfg.Logging.Level))

	return &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgMgr.Get()

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	st, err := storage.Open(storageConfig(cfg), logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "storage")))
	if err != nil {
		cancel()
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = st
	if st == nil {
		a.log.Warn("persistence disabled; schedules will not survive restarts")
	}

	execTimeout, _ := config.ParseDurationField("printer.timeout", cfg.Printer.Timeout)
	run, err := executor.New(executor.Config{
		BaseURL: cfg.Printer.BaseURL,
		Timeout: execTimeout,
	}, a.log.With(slog.String("comp", "executor")))
	if err != nil {
		cancel()
		return err
	}

	a.bus = eventbus.New()

	backoff, _ := config.ParseDurationField("engine.error_backoff", cfg.Engine.ErrorBackoff)
	a.engine = scheduler.New(
		scheduler.Config{ErrorBackoff: backoff},
		a.log.With(slog.String("comp", "engine")),
		nil,
		a.store,
		run,
		a.bus,
	)
	if err := a.engine.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start engine: %w", err)
	}

	a.notifier = notify.New(notifierConfig(cfg), a.log.With(slog.String("comp", "notify")), a.bus)
	a.notifier.Start(runCtx)

	a.keeper = newHousekeeper(cfg.Housekeeping, a.engine, a.log.With(slog.String("comp", "housekeeping")))
	a.keeper.Start()

	a.watchConfig(runCtx)
	a.log.Info("daemon started", slog.String("printer", cfg.Printer.BaseURL))
	return nil
}

// Stop shuts services down in reverse start order, bounded by ctx.
func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	if a.keeper != nil {
		a.keeper.Stop()
	}
	if a.notifier != nil {
		a.notifier.Stop(ctx)
	}
	if a.engine != nil {
		a.engine.Stop(ctx)
	}
	a.wg.Wait()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", slog.Any("err", err))
		}
	}
	a.log.Info("daemon stopped")
	a.logSvc.Close()
}

// Engine exposes the scheduling engine for status surfaces.
func (a *App) Engine() *scheduler.Engine { return a.engine }

// watchConfig hot-reloads the sections that can change without a restart:
// logging and the notifier. Printer, storage and engine changes need a
// restart and are only reported.
func (a *App) watchConfig(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(ctx)
	}()

	updates := a.cfgMgr.Subscribe(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgMgr.Unsubscribe(updates)
		prev := a.cfgMgr.Get()
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				changed, _ := config.SummarizeConfigChange(prev, cfg)
				if len(changed) == 0 {
					continue
				}
				a.log.Info("config reloaded", slog.String("sections", strings.Join(changed, ",")))

				a.logSvc.Apply(logging.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					Pretty:  cfg.Logging.Pretty,
					File: logging.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.notifier.Apply(notifierConfig(cfg))

				for _, section := range changed {
					switch section {
					case "printer", "storage", "engine", "housekeeping":
						a.log.Warn("config change needs a restart to take effect", slog.String("section", section))
					}
				}
				prev = cfg
			}
		}
	}()
}

func storageConfig(cfg *config.Config) storage.Config {
	if cfg.Storage == nil {
		return storage.Config{}
	}
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}

func notifierConfig(cfg *config.Config) notify.Config {
	if cfg.Notifier == nil {
		return notify.Config{}
	}
	timeout, _ := config.ParseDurationOrDefault("notifier.timeout", cfg.Notifier.Timeout, 10*time.Second)
	return notify.Config{
		Enabled:    cfg.Notifier.Enabled,
		WebhookURL: cfg.Notifier.WebhookURL,
		RatePerSec: cfg.Notifier.RatePerSec,
		Buffer:     cfg.Notifier.Buffer,
		Timeout:    timeout,
	}
}
