package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Completer is an opaque text-completion backend. The kernel only ever sends
// a prompt and reads text back; model choice and transport live behind it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const (
	defaultCompleteTimeout = 2 * time.Minute
	maxResponseBytes       = 1 << 20
)

// HTTPCompleter talks to an ollama-compatible generate endpoint.
type HTTPCompleter struct {
	baseURL string
	model   string
	client  *http.Client
}

// CompleterOption configures HTTPCompleter.
type CompleterOption func(*HTTPCompleter)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) CompleterOption {
	return func(c *HTTPCompleter) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout bounds each completion call.
func WithTimeout(d time.Duration) CompleterOption {
	return func(c *HTTPCompleter) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// NewHTTPCompleter constructs a completer for the given backend and model.
func NewHTTPCompleter(baseURL, model string, opts ...CompleterOption) (*HTTPCompleter, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("completion backend URL is required")
	}
	c := &HTTPCompleter{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: defaultCompleteTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Options map[string]any `json:"options,omitempty"`
	Stream  bool           `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Complete posts the prompt and returns the generated text. Transport and
// status errors surface as plain errors; callers are expected to degrade to
// a local fallback rather than show them to users.
func (c *HTTPCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Options: map[string]any{"num_ctx": 8192},
		Stream:  false,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion backend: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("completion backend: read response: %w", err)
	}
	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("completion backend: decode response: %w", err)
	}
	return out.Response, nil
}
