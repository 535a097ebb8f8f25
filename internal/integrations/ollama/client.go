// Package ollama is the analyzer integration: a local-LLM HTTP client used
// by the AI-assisted tools. It is strictly best-effort; a circuit breaker
// skips calls while the service is failing so tool handlers degrade cleanly.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"vcgate/internal/platform/config"
	"vcgate/pkg/platform/circuit"
	"vcgate/pkg/platform/sentinel"
)

// Client talks to an Ollama instance.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// New builds a client from configuration.
func New(cfg config.Ollama, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: circuit.New("ollama",
			circuit.WithFailureThreshold(3),
			circuit.WithCooldown(30*time.Second),
		),
		logger:  logger,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Analyze runs one prompt through the model and returns its text. Context
// data, when present, is appended to the prompt as JSON.
func (c *Client) Analyze(ctx context.Context, prompt string, contextData map[string]any) (string, error) {
	if c.breaker.IsOpen() {
		return "", fmt.Errorf("ollama circuit open: %w", sentinel.ErrUnavailable)
	}

	if len(contextData) > 0 {
		encoded, err := json.Marshal(contextData)
		if err == nil {
			prompt = fmt.Sprintf("%s\n\nContext data:\n%s", prompt, encoded)
		}
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": 0.7,
			"top_p":       0.9,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordFailure(err)
		return "", fmt.Errorf("ollama request: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("ollama returned %d", resp.StatusCode)
		c.recordFailure(err)
		return "", fmt.Errorf("%v: %w", err, sentinel.ErrUnavailable)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		c.recordFailure(err)
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("ollama circuit closed")
	}
	return decoded.Response, nil
}

// Healthy pings the tags endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) recordFailure(err error) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.Warn("ollama circuit opened", "error", err)
	}
}
