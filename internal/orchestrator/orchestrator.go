// Package orchestrator implements the Query Orchestrator: the single
// entry point that assigns a query id, composes the context-augmented
// prompt, dispatches to a mode-specific pipeline (simple, two-stage,
// council, benchmark), and instruments every stage boundary to the
// Event Bus, Topology Tracker, and Metrics Aggregator.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/orchestrator/internal/dialogue"
	"github.com/tutu-network/orchestrator/internal/domain"
	"github.com/tutu-network/orchestrator/internal/retrieval"
)

// ModelCaller generates one completion from a named model, returning
// both predicted and evaluated token counts for metrics instrumentation.
type ModelCaller interface {
	Generate(ctx context.Context, modelID, prompt string, maxTokens int, temperature float64) (content string, tokensPredicted, tokensEvaluated int, err error)
}

// ModelSelector is the narrow slice of the Model Selector's API the
// Orchestrator depends on.
type ModelSelector interface {
	Select(tier domain.Tier) (*domain.DiscoveredModel, error)
	SelectDebatePair() (pro, con *domain.DiscoveredModel, err error)
}

// WebSearcher is the optional web-search collaborator. Failures are
// always non-fatal to the pipeline.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// ComplexityAssessor scores a Stage 1 response's complexity for the
// two-stage mode's tier escalation decision.
type ComplexityAssessor interface {
	Assess(ctx context.Context, query, stage1Response string) (score float64, reasoning string, err error)
}

// EventPublisher is the narrow Event Bus API the Orchestrator depends on.
type EventPublisher interface {
	Publish(e domain.SystemEvent)
}

// MetricsRecorder is the narrow Metrics Aggregator API the Orchestrator
// depends on.
type MetricsRecorder interface {
	Record(metric string, value float64, tags map[string]string)
	RecordQueryRun(queryID string, mode domain.QueryMode, success bool, millis float64) error
	RecordModelRequest(modelID string)
}

// FlowRecorder is the narrow Topology Tracker API the Orchestrator
// depends on.
type FlowRecorder interface {
	RecordFlow(queryID, componentID string)
}

// ServerChecker reports whether a model currently has a running,
// healthy inference server (used to validate debate participants).
type ServerChecker interface {
	IsHealthy(modelID string) bool
}

// Config tunes thresholds the spec leaves as defaults.
type Config struct {
	ComplexityThreshold float64 // default 7; score >= this escalates to POWERFUL in two-stage
	Stage1MaxTokens      int    // default 500
	ConsensusRoundTokens int    // default 500
	DefaultBatchSize     int    // default 3, used when BenchmarkOptions.BatchSize <= 0
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		ComplexityThreshold: 7,
		Stage1MaxTokens:      500,
		ConsensusRoundTokens: 500,
		DefaultBatchSize:     3,
	}
}

// Orchestrator wires every collaborator the Query Orchestrator needs
// (spec.md §4.7) and dispatches to mode-specific pipelines.
type Orchestrator struct {
	cfg Config

	registry  *domain.ModelRegistry
	selector  ModelSelector
	caller    ModelCaller
	retrieval retrieval.Engine
	webSearch WebSearcher
	complexity ComplexityAssessor
	dialogue  *dialogue.Engine
	servers   ServerChecker

	events  EventPublisher
	metrics MetricsRecorder
	flows   FlowRecorder
}

// Options wires an Orchestrator's collaborators. Retrieval, WebSearch,
// Complexity, Events, Metrics, and Flows may be nil; missing optional
// collaborators degrade silently per spec.md §7.
type Options struct {
	Config     Config
	Registry   *domain.ModelRegistry
	Selector   ModelSelector
	Caller     ModelCaller
	Retrieval  retrieval.Engine
	WebSearch  WebSearcher
	Complexity ComplexityAssessor
	Dialogue   *dialogue.Engine
	Servers    ServerChecker
	Events     EventPublisher
	Metrics    MetricsRecorder
	Flows      FlowRecorder
}

// New constructs an Orchestrator. Retrieval defaults to retrieval.NullEngine{}.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg.Stage1MaxTokens == 0 {
		cfg = DefaultConfig()
	}
	ret := opts.Retrieval
	if ret == nil {
		ret = retrieval.NullEngine{}
	}
	return &Orchestrator{
		cfg:        cfg,
		registry:   opts.Registry,
		selector:   opts.Selector,
		caller:     opts.Caller,
		retrieval:  ret,
		webSearch:  opts.WebSearch,
		complexity: opts.Complexity,
		dialogue:   opts.Dialogue,
		servers:    opts.Servers,
		events:     opts.Events,
		metrics:    opts.Metrics,
		flows:      opts.Flows,
	}
}

// Process dispatches req to its mode's pipeline and returns the
// packaged response (spec.md §4.7).
func (o *Orchestrator) Process(ctx context.Context, req domain.QueryRequest) (domain.QueryResponse, error) {
	queryID := uuid.New().String()
	start := time.Now()

	o.recordFlow(queryID, "orchestrator")
	input := o.beginStage(queryID, "input", map[string]interface{}{"mode": string(req.Mode)})
	input.end(nil, nil)

	pre := o.buildPreamble(ctx, queryID, req)

	var resp domain.QueryResponse
	var err error
	switch req.Mode {
	case domain.ModeSimple:
		resp, err = o.runSimple(ctx, queryID, req, pre)
	case domain.ModeTwoStage:
		resp, err = o.runTwoStage(ctx, queryID, req, pre)
	case domain.ModeCouncil:
		if req.Council.Adversarial {
			resp, err = o.runCouncilDebate(ctx, queryID, req, pre)
		} else {
			resp, err = o.runCouncilConsensus(ctx, queryID, req, pre)
		}
	case domain.ModeBenchmark:
		resp, err = o.runBenchmark(ctx, queryID, req, pre)
	default:
		err = fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidRequest, req.Mode)
	}

	millis := float64(time.Since(start).Microseconds()) / 1000.0
	resp.QueryID = queryID
	resp.Mode = req.Mode
	resp.Millis = millis

	if err != nil {
		o.publish(domain.EventPipelineFailed, domain.SeverityError, fmt.Sprintf("query %s failed: %v", queryID, err), map[string]interface{}{"queryId": queryID})
		if o.metrics != nil {
			o.metrics.RecordQueryRun(queryID, req.Mode, false, millis) //nolint:errcheck
		}
		return resp, err
	}

	response := o.beginStage(queryID, "response", map[string]interface{}{"mode": string(req.Mode)})
	response.end(nil, map[string]interface{}{"responseChars": len(resp.Response)})

	o.publish(domain.EventPipelineComplete, domain.SeverityInfo, fmt.Sprintf("query %s complete", queryID), map[string]interface{}{"mode": string(req.Mode)})
	if o.metrics != nil {
		o.metrics.RecordQueryRun(queryID, req.Mode, true, millis) //nolint:errcheck
		o.metrics.Record("response_time_ms", millis, map[string]string{"query_mode": string(req.Mode)})
		if totalTokens, ok := resp.Metadata["totalTokens"].(int); ok && totalTokens > 0 && millis > 0 {
			o.metrics.Record("tokens_per_sec", float64(totalTokens)/millis*1000.0, map[string]string{"query_mode": string(req.Mode)})
		}
		if pre.retrievalMillis > 0 {
			o.metrics.Record("retrieval_time_ms", pre.retrievalMillis, map[string]string{"query_mode": string(req.Mode)})
		}
	}
	return resp, nil
}

// generate calls the model, records the model-request counter, and
// stamps a topology flow crumb for modelID.
func (o *Orchestrator) generate(ctx context.Context, queryID, modelID, prompt string, maxTokens int, temperature float64) (string, int, int, error) {
	content, predicted, evaluated, err := o.caller.Generate(ctx, modelID, prompt, maxTokens, temperature)
	o.recordFlow(queryID, modelID)
	if o.metrics != nil {
		o.metrics.RecordModelRequest(modelID)
	}
	return content, predicted, evaluated, err
}

func (o *Orchestrator) recordFlow(queryID, componentID string) {
	if o.flows != nil {
		o.flows.RecordFlow(queryID, componentID)
	}
}

func (o *Orchestrator) publish(t domain.EventType, sev domain.Severity, msg string, metadata map[string]interface{}) {
	if o.events == nil {
		return
	}
	o.events.Publish(domain.SystemEvent{
		Timestamp: time.Now(),
		Type:      t,
		Message:   domain.TruncateMessage(msg),
		Severity:  sev,
		Metadata:  metadata,
	})
}

// stageTimer times one named pipeline stage (spec.md glossary: input,
// complexity, cgrag, routing, generation, response) and emits its
// PIPELINE_STAGE_START/COMPLETE/FAILED event pair.
type stageTimer struct {
	o       *Orchestrator
	queryID string
	stage   string
	start   time.Time
}

// beginStage emits PIPELINE_STAGE_START for stage and returns a timer
// whose end call emits the matching COMPLETE/FAILED event with the
// elapsed duration (spec.md §4.7 "Instrumentation").
func (o *Orchestrator) beginStage(queryID, stage string, metadata map[string]interface{}) *stageTimer {
	meta := map[string]interface{}{"queryId": queryID, "stage": stage}
	for k, v := range metadata {
		meta[k] = v
	}
	o.publish(domain.EventPipelineStageStart, domain.SeverityInfo, fmt.Sprintf("stage %s started", stage), meta)
	return &stageTimer{o: o, queryID: queryID, stage: stage, start: time.Now()}
}

// end emits the stage's completion event (FAILED if err is non-nil),
// carrying the stage's duration in milliseconds, and returns that
// duration for callers that also need it (e.g. retrieval timing).
func (t *stageTimer) end(err error, metadata map[string]interface{}) float64 {
	millis := float64(time.Since(t.start).Microseconds()) / 1000.0
	meta := map[string]interface{}{"queryId": t.queryID, "stage": t.stage, "durationMs": millis}
	for k, v := range metadata {
		meta[k] = v
	}
	evType := domain.EventPipelineStageComplete
	sev := domain.SeverityInfo
	msg := fmt.Sprintf("stage %s complete", t.stage)
	if err != nil {
		evType = domain.EventPipelineStageFailed
		sev = domain.SeverityError
		msg = fmt.Sprintf("stage %s failed: %v", t.stage, err)
	}
	t.o.publish(evType, sev, msg, meta)
	return millis
}
