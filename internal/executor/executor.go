// Package executor runs macros against the printer's HTTP API.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	// BaseURL of the printer API, e.g. "http://localhost:7125".
	BaseURL string
	Timeout time.Duration
}

// Client submits G-code macro commands to the printer API's
// /printer/gcode/script endpoint. It implements the engine's Runner.
type Client struct {
	base   string
	log    *slog.Logger
	client *http.Client
}

func New(cfg Config, log *slog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("executor: base_url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("executor: bad base_url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:   base,
		log:    log,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Run submits command and waits for the printer to acknowledge it. The
// printer executes scripts synchronously, so a slow macro holds the request
// open until it finishes.
func (c *Client) Run(ctx context.Context, command string) error {
	q := url.Values{"script": {command}}
	endpoint := c.base + "/printer/gcode/script?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("executor: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("executor: submit %q: %w", command, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// The API reports macro errors in the body; keep a short excerpt.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("executor: %q failed with %s: %s", command, resp.Status, strings.TrimSpace(string(body)))
	}

	c.log.Debug("gcode accepted",
		slog.String("command", command),
		slog.Duration("took", time.Since(start)))
	return nil
}
