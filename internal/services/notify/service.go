package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"macroschedd/internal/eventbus"
	"macroschedd/internal/services/scheduler"
)

// Service consumes executed-macro events and fans them out to sinks.
// It is safe for concurrent use; Apply may race with deliveries.
type Service struct {
	log    *slog.Logger
	bus    eventbus.Bus
	client *http.Client

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	unsub func()
	done  chan struct{}
}

func New(cfg Config, log *slog.Logger, bus eventbus.Bus) *Service {
	s := &Service{
		log:    log,
		bus:    bus,
		client: &http.Client{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg = cfg
	s.client.Timeout = cfg.Timeout
	// Burst = rate per sec, so short spikes don't drop immediately.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start subscribes to the bus. A disabled notifier stays subscribed so a
// later Apply can turn delivery on without rewiring.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done != nil || s.bus == nil {
		s.mu.Unlock()
		return
	}
	ch, unsub := s.bus.Subscribe(s.cfg.Buffer)
	s.unsub = unsub
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Type != scheduler.EventExecuted {
					continue
				}
				data, ok := ev.Data.(scheduler.ExecutedEvent)
				if !ok {
					continue
				}
				s.deliver(ctx, data)
			}
		}
	}()
}

// Stop unsubscribes and waits for the consumer loop, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	unsub := s.unsub
	done := s.done
	s.unsub = nil
	s.done = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
}

func (s *Service) deliver(ctx context.Context, ev scheduler.ExecutedEvent) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if !cfg.Enabled {
		return
	}
	s.log.Info("macro notification",
		slog.String("schedule", ev.Schedule),
		slog.String("command", ev.Command),
		slog.String("run_id", ev.RunID))

	if cfg.WebhookURL == "" {
		return
	}
	if !lim.Allow() {
		s.log.Debug("webhook rate limited; dropping", slog.String("run_id", ev.RunID))
		return
	}
	if err := s.post(ctx, cfg.WebhookURL, ev); err != nil {
		s.log.Warn("webhook delivery failed", slog.String("run_id", ev.RunID), slog.Any("err", err))
	}
}

func (s *Service) post(ctx context.Context, url string, ev scheduler.ExecutedEvent) error {
	body, err := json.Marshal(payload{
		RunID:    ev.RunID,
		Schedule: ev.Schedule,
		Command:  ev.Command,
		Time:     ev.Time,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
