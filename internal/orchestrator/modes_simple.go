package orchestrator

import (
	"context"
	"fmt"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// runSimple forces tier FAST, selects a model, and generates once with
// the composed prompt (spec.md §4.7 "Mode: simple").
func (o *Orchestrator) runSimple(ctx context.Context, queryID string, req domain.QueryRequest, pre preamble) (domain.QueryResponse, error) {
	routing := o.beginStage(queryID, "routing", map[string]interface{}{"tier": string(domain.TierFast)})
	model, err := o.selector.Select(domain.TierFast)
	if err != nil {
		routing.end(err, nil)
		return domain.QueryResponse{}, fmt.Errorf("select fast-tier model: %w", err)
	}
	routing.end(nil, map[string]interface{}{"modelId": model.ModelID})

	generation := o.beginStage(queryID, "generation", map[string]interface{}{"modelId": model.ModelID})
	content, predicted, _, err := o.generate(ctx, queryID, model.ModelID, pre.composedPrompt, req.MaxTokens, req.Temperature)
	if err != nil {
		generation.end(err, nil)
		return domain.QueryResponse{}, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	generation.end(nil, map[string]interface{}{"tokens": predicted})

	return domain.QueryResponse{
		Response: content,
		Metadata: map[string]interface{}{
			"modelId":     model.ModelID,
			"tier":        string(domain.TierFast),
			"totalTokens": predicted,
		},
	}, nil
}
