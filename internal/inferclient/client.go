// Package inferclient is a thin HTTP client for a single inference
// server instance, with bounded retry/backoff, matching the teacher's
// SubprocessHandle.Generate/Chat request shape but against spec's
// plain /completion contract rather than streaming SSE chunks.
package inferclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// Options configures a Client.
type Options struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxRetries     int
	Backoff        time.Duration
}

// Client calls one inference server's HTTP surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// New builds a Client targeting http://host:port.
func New(opts Options) *Client {
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", host, opts.Port),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
	}
}

// GenerateResult is the completion response shape of spec.md §4.3.
type GenerateResult struct {
	Content          string `json:"content"`
	TokensPredicted  int    `json:"tokens_predicted"`
	TokensEvaluated  int    `json:"tokens_evaluated"`
}

// Generate calls POST /completion with bounded retry and backoff.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64, stop []string) (*GenerateResult, error) {
	body := map[string]interface{}{
		"prompt":      prompt,
		"n_predict":   maxTokens,
		"temperature": temperature,
	}
	if len(stop) > 0 {
		body["stop"] = stop
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		result, err := c.doGenerate(ctx, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%s: %w: %v", c.baseURL, domain.ErrGenerationFailed, lastErr)
}

func (c *Client) doGenerate(ctx context.Context, payload []byte) (*GenerateResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w", domain.ErrQueryTimeout)
		}
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		json.Unmarshal(raw, &errBody) //nolint:errcheck
		msg := errBody.Error
		if msg == "" {
			msg = string(raw)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}

	var result GenerateResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// HealthStatus is the closed set of health probe outcomes.
type HealthStatus string

const (
	HealthOK          HealthStatus = "ok"
	HealthLoading     HealthStatus = "loading"
	HealthUnreachable HealthStatus = "unreachable"
	HealthError       HealthStatus = "error"
)

// HealthResult is the outcome of a health probe.
type HealthResult struct {
	Status    HealthStatus
	LatencyMs float64
}

// Health probes GET /health, classifying 200 as ok, 503 as loading, and
// any other outcome as error (or unreachable on a connection failure).
func (c *Client) Health(ctx context.Context) HealthResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthResult{Status: HealthError, LatencyMs: 0}
	}

	resp, err := c.httpClient.Do(req)
	latency := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		return HealthResult{Status: HealthUnreachable, LatencyMs: latency}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return HealthResult{Status: HealthOK, LatencyMs: latency}
	case resp.StatusCode == http.StatusServiceUnavailable:
		return HealthResult{Status: HealthLoading, LatencyMs: latency}
	default:
		return HealthResult{Status: HealthError, LatencyMs: latency}
	}
}
