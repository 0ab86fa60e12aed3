// Package stream publishes run status events to external consumers. The
// database row is authoritative; everything here is best-effort and publish
// failures must never fail the operation that produced the event.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourusername/backtest-pilot/internal/config"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// RunStatusEvent is the message published on every run transition
type RunStatusEvent struct {
	RunID      string           `json:"run_id"`
	AccountID  string           `json:"account_id"`
	Type       models.RunType   `json:"type"`
	Status     models.RunStatus `json:"status"`
	Progress   float64          `json:"progress"`
	Message    string           `json:"message,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// StatusPublisher delivers run status events to an external stream
type StatusPublisher interface {
	Publish(ctx context.Context, event RunStatusEvent) error
}

// NopPublisher discards events; used when streaming is disabled and in tests
type NopPublisher struct{}

// Publish discards the event
func (NopPublisher) Publish(ctx context.Context, event RunStatusEvent) error {
	return nil
}

// WebhookPublisher POSTs events to a configured endpoint with retries and a
// client-side rate limit.
type WebhookPublisher struct {
	client    *retryablehttp.Client
	limiter   *rate.Limiter
	url       string
	authToken string
	logger    *logrus.Logger
}

// NewWebhookPublisher creates a publisher from stream configuration
func NewWebhookPublisher(cfg *config.StreamConfig, logger *logrus.Logger) *WebhookPublisher {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = 10 * time.Second
	client.RetryMax = 3
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 10
	}

	return &WebhookPublisher{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(limit), 1),
		url:       cfg.WebhookURL,
		authToken: cfg.AuthToken,
		logger:    logger,
	}
}

// Publish delivers one event, waiting for rate-limit headroom first
func (p *WebhookPublisher) Publish(ctx context.Context, event RunStatusEvent) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to publish status event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	return nil
}

// FanoutPublisher delivers each event to every wrapped publisher
type FanoutPublisher struct {
	targets []StatusPublisher
}

// NewFanoutPublisher wraps multiple publishers as one
func NewFanoutPublisher(targets ...StatusPublisher) *FanoutPublisher {
	return &FanoutPublisher{targets: targets}
}

// Publish delivers to all targets, returning the first error after trying each
func (p *FanoutPublisher) Publish(ctx context.Context, event RunStatusEvent) error {
	var firstErr error
	for _, t := range p.targets {
		if err := t.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
