package orchestrator

import (
	"context"
	"fmt"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// runTwoStage runs a FAST-tier draft, assesses its complexity, escalates
// to BALANCED or POWERFUL for a refinement pass, and returns the
// refined output (spec.md §4.7 "Mode: two-stage").
func (o *Orchestrator) runTwoStage(ctx context.Context, queryID string, req domain.QueryRequest, pre preamble) (domain.QueryResponse, error) {
	routing1 := o.beginStage(queryID, "routing", map[string]interface{}{"tier": string(domain.TierFast), "which": "stage1"})
	stage1Model, err := o.selector.Select(domain.TierFast)
	if err != nil {
		routing1.end(err, nil)
		return domain.QueryResponse{}, fmt.Errorf("select fast-tier model: %w", err)
	}
	routing1.end(nil, map[string]interface{}{"modelId": stage1Model.ModelID})

	gen1 := o.beginStage(queryID, "generation", map[string]interface{}{"modelId": stage1Model.ModelID, "which": "stage1"})
	stage1Content, stage1Tokens, _, err := o.generate(ctx, queryID, stage1Model.ModelID, pre.composedPrompt, o.cfg.Stage1MaxTokens, req.Temperature)
	if err != nil {
		gen1.end(err, nil)
		return domain.QueryResponse{}, fmt.Errorf("%w: stage 1: %v", domain.ErrGenerationFailed, err)
	}
	gen1.end(nil, map[string]interface{}{"tokens": stage1Tokens})

	complexity := o.beginStage(queryID, "complexity", nil)
	score, reasoning := 0.0, "complexity assessment unavailable"
	if o.complexity != nil {
		if s, r, err := o.complexity.Assess(ctx, req.Query, stage1Content); err == nil {
			score, reasoning = s, r
			complexity.end(nil, map[string]interface{}{"score": score})
		} else {
			o.publish(domain.EventError, domain.SeverityWarning, fmt.Sprintf("complexity assessment failed: %v", err), nil)
			complexity.end(err, nil)
		}
	} else {
		complexity.end(nil, map[string]interface{}{"score": score, "skipped": true})
	}

	stage2Tier := domain.TierBalanced
	if score >= o.cfg.ComplexityThreshold {
		stage2Tier = domain.TierPowerful
	}

	routing2 := o.beginStage(queryID, "routing", map[string]interface{}{"tier": string(stage2Tier), "which": "stage2"})
	stage2Model, err := o.selector.Select(stage2Tier)
	if err != nil {
		routing2.end(err, nil)
		return domain.QueryResponse{}, fmt.Errorf("select %s-tier model: %w", stage2Tier, err)
	}
	routing2.end(nil, map[string]interface{}{"modelId": stage2Model.ModelID})

	stage2Prompt := fmt.Sprintf(
		"Original query: %s\n\nInitial response:\n%s\n\nImprove and expand the above response with full accuracy, correcting any mistakes.",
		req.Query, stage1Content,
	)
	gen2 := o.beginStage(queryID, "generation", map[string]interface{}{"modelId": stage2Model.ModelID, "which": "stage2"})
	stage2Content, stage2Tokens, _, err := o.generate(ctx, queryID, stage2Model.ModelID, stage2Prompt, req.MaxTokens, req.Temperature)
	if err != nil {
		gen2.end(err, nil)
		return domain.QueryResponse{}, fmt.Errorf("%w: stage 2: %v", domain.ErrGenerationFailed, err)
	}
	gen2.end(nil, map[string]interface{}{"tokens": stage2Tokens})

	return domain.QueryResponse{
		Response: stage2Content,
		Metadata: map[string]interface{}{
			"totalTokens": stage1Tokens + stage2Tokens,
			"complexityScore": score,
			"stages": []domain.StageInfo{
				{ModelID: stage1Model.ModelID, Tier: domain.TierFast, Response: stage1Content, Tokens: stage1Tokens},
				{ModelID: stage2Model.ModelID, Tier: stage2Tier, Response: stage2Content, Tokens: stage2Tokens},
			},
			"complexityReasoning": reasoning,
		},
	}, nil
}
