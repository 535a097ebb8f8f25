// Package n8n is the notifier integration: it posts operation events to a
// workflow-automation webhook. Delivery is fire-and-forget with a bounded
// retry; failures never propagate beyond a log line.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"vcgate/internal/platform/config"
)

// Client posts events to the configured webhook.
type Client struct {
	webhookURL string
	apiKey     string
	http       *http.Client
	logger     *slog.Logger
}

// New builds a client from configuration.
func New(cfg config.N8N, logger *slog.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type event struct {
	Event     string         `json:"event"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Notify delivers one event, retrying transient failures with exponential
// backoff for a short window. Errors are returned for the caller to log;
// callers invoke this asynchronously and never fail an operation on it.
func (c *Client) Notify(ctx context.Context, eventName string, payload map[string]any) error {
	body, err := json.Marshal(event{
		Event:     eventName,
		Source:    "vcgate",
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	deliver := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-N8N-API-KEY", c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return struct{}{}, fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			// Client errors will not heal on retry.
			return struct{}{}, backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
		return struct{}{}, nil
	}

	_, err = backoff.Retry(ctx, deliver,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(4),
	)
	if err != nil {
		return fmt.Errorf("deliver %q event: %w", eventName, err)
	}
	return nil
}
