package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tutu-network/orchestrator/internal/config"
	"github.com/tutu-network/orchestrator/internal/domain"
	"github.com/tutu-network/orchestrator/internal/inferclient"
)

// portResolver is the narrow servermgr API inferClientCaller needs to
// resolve a model/instance id to its listening port.
type portResolver interface {
	Port(trackingKey string) (int, bool)
}

// metricsSink records per-call request counts, narrowed to avoid a
// direct metricsagg dependency beyond what the caller needs.
type metricsSink interface {
	RecordModelRequest(modelID string)
}

// inferClientCaller resolves a model id to its running server's port
// via the Server Manager and dispatches the call through a cached
// inferclient.Client, satisfying orchestrator.ModelCaller directly; the
// dialogueCaller and codechatCaller adapters wrap it to satisfy
// dialogue.ModelCaller and codechat.ModelCaller (each a differently
// shaped narrowing of the same underlying generate call).
type inferClientCaller struct {
	servers portResolver
	host    string
	client  config.ClientConfig
	metrics metricsSink

	mu      sync.Mutex
	clients map[int]*inferclient.Client
}

func (c *inferClientCaller) clientFor(port int) *inferclient.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clients == nil {
		c.clients = make(map[int]*inferclient.Client)
	}
	if cl, ok := c.clients[port]; ok {
		return cl
	}
	cl := inferclient.New(inferclient.Options{
		Host:           c.host,
		Port:           port,
		RequestTimeout: time.Duration(c.client.RequestTimeoutSecs) * time.Second,
		MaxRetries:     c.client.MaxRetries,
		Backoff:        time.Duration(c.client.BackoffMillis) * time.Millisecond,
	})
	c.clients[port] = cl
	return cl
}

// Generate satisfies orchestrator.ModelCaller.
func (c *inferClientCaller) Generate(ctx context.Context, modelID, prompt string, maxTokens int, temperature float64) (string, int, int, error) {
	port, ok := c.servers.Port(modelID)
	if !ok {
		return "", 0, 0, fmt.Errorf("%s: %w", modelID, domain.ErrModelUnavailable)
	}
	if c.metrics != nil {
		c.metrics.RecordModelRequest(modelID)
	}
	res, err := c.clientFor(port).Generate(ctx, prompt, maxTokens, temperature, nil)
	if err != nil {
		return "", 0, 0, err
	}
	return res.Content, res.TokensPredicted, res.TokensEvaluated, nil
}

// Health reports the inference server's health for modelID, or
// unreachable if it has no tracked server.
func (c *inferClientCaller) Health(ctx context.Context, modelID string) inferclient.HealthResult {
	port, ok := c.servers.Port(modelID)
	if !ok {
		return inferclient.HealthResult{Status: inferclient.HealthUnreachable}
	}
	return c.clientFor(port).Health(ctx)
}

// dialogueCaller narrows inferClientCaller to dialogue.ModelCaller's
// two-value return.
type dialogueCaller struct{ c *inferClientCaller }

func (d dialogueCaller) Generate(ctx context.Context, modelID, prompt string, maxTokens int, temperature float64) (string, error) {
	content, _, _, err := d.c.Generate(ctx, modelID, prompt, maxTokens, temperature)
	return content, err
}

// codechatCaller narrows inferClientCaller to codechat.ModelCaller's
// two-value return.
type codechatCaller struct{ c *inferClientCaller }

func (a codechatCaller) Generate(ctx context.Context, modelID, prompt string, maxTokens int, temperature float64) (string, error) {
	content, _, _, err := a.c.Generate(ctx, modelID, prompt, maxTokens, temperature)
	return content, err
}
