package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// runBenchmark runs every enabled model against the same prompt, either
// serially (VRAM-conservative) or in concurrent batches, and returns a
// formatted comparison table (spec.md §4.7 "Mode: benchmark").
func (o *Orchestrator) runBenchmark(ctx context.Context, queryID string, req domain.QueryRequest, pre preamble) (domain.QueryResponse, error) {
	routing := o.beginStage(queryID, "routing", nil)
	models := o.registry.Enabled()
	if len(models) == 0 {
		err := fmt.Errorf("%w: no enabled models to benchmark", domain.ErrNoModelsAvailable)
		routing.end(err, nil)
		return domain.QueryResponse{}, err
	}
	routing.end(nil, map[string]interface{}{"models": len(models)})

	generation := o.beginStage(queryID, "generation", map[string]interface{}{"serial": req.Benchmark.Serial})
	var results []domain.BenchmarkResult
	if req.Benchmark.Serial {
		results = o.benchmarkSerial(ctx, queryID, models, pre.composedPrompt, req.MaxTokens, req.Temperature)
	} else {
		batchSize := req.Benchmark.BatchSize
		if batchSize <= 0 {
			batchSize = o.cfg.DefaultBatchSize
		}
		results = o.benchmarkBatched(ctx, queryID, models, pre.composedPrompt, req.MaxTokens, req.Temperature, batchSize)
	}

	anySucceeded := false
	for _, r := range results {
		if r.Success {
			anySucceeded = true
			break
		}
	}
	if !anySucceeded {
		err := fmt.Errorf("%w: every model failed in benchmark mode", domain.ErrGenerationFailed)
		generation.end(err, nil)
		return domain.QueryResponse{}, err
	}
	generation.end(nil, map[string]interface{}{"results": len(results)})

	return domain.QueryResponse{
		Response: formatBenchmarkTable(results),
		Metadata: map[string]interface{}{"results": results},
	}, nil
}

func (o *Orchestrator) benchmarkSerial(ctx context.Context, queryID string, models []*domain.DiscoveredModel, prompt string, maxTokens int, temperature float64) []domain.BenchmarkResult {
	results := make([]domain.BenchmarkResult, 0, len(models))
	for _, m := range models {
		results = append(results, o.benchmarkOne(ctx, queryID, m, prompt, maxTokens, temperature))
	}
	return results
}

func (o *Orchestrator) benchmarkBatched(ctx context.Context, queryID string, models []*domain.DiscoveredModel, prompt string, maxTokens int, temperature float64, batchSize int) []domain.BenchmarkResult {
	results := make([]domain.BenchmarkResult, len(models))
	for start := 0; start < len(models); start += batchSize {
		end := start + batchSize
		if end > len(models) {
			end = len(models)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = o.benchmarkOne(ctx, queryID, models[i], prompt, maxTokens, temperature)
			}(i)
		}
		wg.Wait()
	}
	return results
}

func (o *Orchestrator) benchmarkOne(ctx context.Context, queryID string, m *domain.DiscoveredModel, prompt string, maxTokens int, temperature float64) domain.BenchmarkResult {
	start := time.Now()
	content, predicted, evaluated, err := o.generate(ctx, queryID, m.ModelID, prompt, maxTokens, temperature)
	millis := float64(time.Since(start).Microseconds()) / 1000.0
	result := domain.BenchmarkResult{
		ModelID:      m.ModelID,
		Millis:       millis,
		TokensOut:    predicted,
		TokensIn:     evaluated,
		EstVRAMBytes: estimateVRAMBytes(m.SizeParams, m.Quantization),
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.Response = content
	return result
}

func formatBenchmarkTable(results []domain.BenchmarkResult) string {
	var b strings.Builder
	b.WriteString("model_id | success | millis | tokens_out | est_vram_mb\n")
	for _, r := range results {
		fmt.Fprintf(&b, "%s | %v | %.1f | %d | %d\n", r.ModelID, r.Success, r.Millis, r.TokensOut, r.EstVRAMBytes/(1024*1024))
	}
	return b.String()
}

// bytesPerWeight is a closed-form per-quantization byte-per-parameter
// factor used for the benchmark mode's estimated VRAM footprint.
var bytesPerWeight = map[domain.Quantization]float64{
	domain.QuantQ2K:  0.35,
	domain.QuantQ3KM: 0.45,
	domain.QuantQ4_0: 0.55,
	domain.QuantQ4KM: 0.57,
	domain.QuantQ5KM: 0.70,
	domain.QuantQ6K:  0.82,
	domain.QuantQ8_0: 1.05,
	domain.QuantF16:  2.10,
	domain.QuantF32:  4.20,
}

const vramOverheadFactor = 1.15 // KV cache + runtime buffers

// estimateVRAMBytes closed-form-estimates a model's VRAM footprint from
// its parameter count and quantization (spec.md §4.7).
func estimateVRAMBytes(sizeParams float64, quant domain.Quantization) int64 {
	perWeight, ok := bytesPerWeight[quant]
	if !ok {
		perWeight = 0.6
	}
	raw := sizeParams * 1e9 * perWeight * vramOverheadFactor
	return int64(raw)
}
