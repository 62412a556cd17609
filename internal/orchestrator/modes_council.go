package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tutu-network/orchestrator/internal/dialogue"
	"github.com/tutu-network/orchestrator/internal/domain"
)

// pickConsensusParticipants prefers one enabled model per tier
// (FAST, BALANCED, POWERFUL in that order), filling from any remaining
// enabled models if fewer than three tiers have candidates.
func pickConsensusParticipants(registry *domain.ModelRegistry) ([]*domain.DiscoveredModel, error) {
	var picked []*domain.DiscoveredModel
	seen := make(map[string]bool)
	for _, tier := range []domain.Tier{domain.TierFast, domain.TierBalanced, domain.TierPowerful} {
		candidates := registry.EnabledInTier(tier)
		if len(candidates) == 0 {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ModelID < candidates[j].ModelID })
		picked = append(picked, candidates[0])
		seen[candidates[0].ModelID] = true
		if len(picked) == 3 {
			break
		}
	}
	if len(picked) < 3 {
		rest := registry.Enabled()
		sort.Slice(rest, func(i, j int) bool { return rest[i].ModelID < rest[j].ModelID })
		for _, m := range rest {
			if seen[m.ModelID] {
				continue
			}
			picked = append(picked, m)
			seen[m.ModelID] = true
			if len(picked) == 3 {
				break
			}
		}
	}
	if len(picked) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 enabled models for council consensus", domain.ErrNotEnoughModels)
	}
	return picked, nil
}

type fanoutResult struct {
	modelID string
	content string
	err     error
}

// runCouncilConsensus runs the two-round consensus pipeline of spec.md
// §4.7 ("Mode: council, council_adversarial=false").
func (o *Orchestrator) runCouncilConsensus(ctx context.Context, queryID string, req domain.QueryRequest, pre preamble) (domain.QueryResponse, error) {
	routing := o.beginStage(queryID, "routing", nil)
	participants, err := pickConsensusParticipants(o.registry)
	if err != nil {
		routing.end(err, nil)
		return domain.QueryResponse{}, err
	}
	routing.end(nil, map[string]interface{}{"participants": participantIDs(participants)})

	gen1 := o.beginStage(queryID, "generation", map[string]interface{}{"round": 1})
	round1 := o.fanOut(ctx, queryID, participants, func(m *domain.DiscoveredModel) string {
		return pre.composedPrompt
	}, o.cfg.ConsensusRoundTokens, req.Temperature)

	successCount := 0
	round1ByModel := make(map[string]string, len(round1))
	for _, r := range round1 {
		round1ByModel[r.modelID] = r.content
		if r.err == nil {
			successCount++
		}
	}
	if successCount < 2 {
		err := fmt.Errorf("%w: fewer than 2 of 3 council participants responded in round 1", domain.ErrModelUnavailable)
		gen1.end(err, nil)
		return domain.QueryResponse{}, err
	}
	gen1.end(nil, map[string]interface{}{"successCount": successCount})

	gen2 := o.beginStage(queryID, "generation", map[string]interface{}{"round": 2})
	round2 := o.fanOut(ctx, queryID, participants, func(m *domain.DiscoveredModel) string {
		return buildRefinementPrompt(req.Query, m.ModelID, round1ByModel)
	}, req.MaxTokens, req.Temperature)

	round2ByModel := make(map[string]string, len(round2))
	for _, r := range round2 {
		if r.err != nil {
			round2ByModel[r.modelID] = round1ByModel[r.modelID]
			continue
		}
		round2ByModel[r.modelID] = r.content
	}
	gen2.end(nil, nil)

	synthesis3 := o.beginStage(queryID, "generation", map[string]interface{}{"round": "synthesis"})
	synthesizer := participants[len(participants)-1]
	synthesisPrompt := buildSynthesisPrompt(req.Query, participants, round2ByModel)
	synthesis, _, _, err := o.generate(ctx, queryID, synthesizer.ModelID, synthesisPrompt, req.MaxTokens, req.Temperature)
	if err != nil {
		synthesis3.end(err, nil)
		synthesis = longestAnswer(round2ByModel)
	} else {
		synthesis3.end(nil, map[string]interface{}{"modelId": synthesizer.ModelID})
	}

	return domain.QueryResponse{
		Response: synthesis,
		Metadata: map[string]interface{}{
			"participants": participantIDs(participants),
			"round1":       round1ByModel,
			"round2":       round2ByModel,
		},
	}, nil
}

func (o *Orchestrator) fanOut(ctx context.Context, queryID string, participants []*domain.DiscoveredModel, promptFor func(*domain.DiscoveredModel) string, maxTokens int, temperature float64) []fanoutResult {
	results := make([]fanoutResult, len(participants))
	var wg sync.WaitGroup
	for i, m := range participants {
		wg.Add(1)
		go func(i int, m *domain.DiscoveredModel) {
			defer wg.Done()
			content, _, _, err := o.generate(ctx, queryID, m.ModelID, promptFor(m), maxTokens, temperature)
			results[i] = fanoutResult{modelID: m.ModelID, content: content, err: err}
		}(i, m)
	}
	wg.Wait()
	return results
}

func buildRefinementPrompt(query, selfID string, round1 map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original query: %s\n\nYour initial answer:\n%s\n\nOther participants' answers:\n", query, round1[selfID])
	for id, answer := range round1 {
		if id == selfID {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", id, answer)
	}
	b.WriteString("\nRefine your answer, preserving your perspective while accounting for the other viewpoints.")
	return b.String()
}

func buildSynthesisPrompt(query string, participants []*domain.DiscoveredModel, round2 map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original query: %s\n\nRefined answers from all participants:\n", query)
	for _, m := range participants {
		fmt.Fprintf(&b, "- %s: %s\n", m.ModelID, round2[m.ModelID])
	}
	b.WriteString("\nProduce a single consensus answer that synthesizes the strongest points from each.")
	return b.String()
}

func longestAnswer(answers map[string]string) string {
	var longest string
	for _, a := range answers {
		if len(a) > len(longest) {
			longest = a
		}
	}
	return longest
}

func participantIDs(models []*domain.DiscoveredModel) []string {
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ModelID
	}
	return ids
}

// resolveDebatePair implements the priority order of spec.md §4.7:
// explicit pro/con pair, else the first two of an explicit participants
// list, else an auto-selected diverse pair via the Selector.
func (o *Orchestrator) resolveDebatePair(req domain.QueryRequest) (proID, conID string, err error) {
	opts := req.Council
	if opts.ProModel != "" && opts.ConModel != "" {
		return opts.ProModel, opts.ConModel, nil
	}
	if len(opts.Participants) >= 2 {
		return opts.Participants[0], opts.Participants[1], nil
	}
	pro, con, err := o.selector.SelectDebatePair()
	if err != nil {
		return "", "", err
	}
	return pro.ModelID, con.ModelID, nil
}

func (o *Orchestrator) validateDebateParticipant(modelID string) (*domain.DiscoveredModel, error) {
	model, ok := o.registry.Models[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, modelID)
	}
	if !model.Enabled {
		return nil, fmt.Errorf("%w: %s is not enabled", domain.ErrModelUnavailable, modelID)
	}
	if o.servers != nil && !o.servers.IsHealthy(modelID) {
		return nil, fmt.Errorf("%w: %s has no running server", domain.ErrModelUnavailable, modelID)
	}
	return model, nil
}

// resolvePersonas loads personas from an explicit map, a named profile,
// or a built-in default map, in that priority order.
func resolvePersonas(opts domain.CouncilOptions, proID, conID string) map[string]string {
	if len(opts.Personas) > 0 {
		return opts.Personas
	}
	if profile, ok := personaProfiles[opts.PersonaProfile]; ok {
		return map[string]string{proID: profile.Pro, conID: profile.Con}
	}
	return map[string]string{proID: "Passionate advocate arguing in favor.", conID: "Rigorous critic arguing against."}
}

type personaPair struct{ Pro, Con string }

var personaProfiles = map[string]personaPair{
	"socratic": {
		Pro: "A Socratic questioner building a case through probing questions.",
		Con: "A Socratic questioner probing weaknesses through counter-questions.",
	},
	"formal-debate": {
		Pro: "A formal debate affirmative speaker, structured and evidence-driven.",
		Con: "A formal debate negative speaker, structured and evidence-driven.",
	},
}

// runCouncilDebate resolves and validates the debate pair, applies
// preset system prompts, and runs the Dialogue Engine (spec.md §4.7
// "Mode: council, council_adversarial=true").
func (o *Orchestrator) runCouncilDebate(ctx context.Context, queryID string, req domain.QueryRequest, pre preamble) (domain.QueryResponse, error) {
	if o.dialogue == nil {
		return domain.QueryResponse{}, fmt.Errorf("%w: dialogue engine not configured", domain.ErrInvalidRequest)
	}

	routing := o.beginStage(queryID, "routing", nil)
	proID, conID, err := o.resolveDebatePair(req)
	if err != nil {
		routing.end(err, nil)
		return domain.QueryResponse{}, fmt.Errorf("resolve debate pair: %w", err)
	}
	if _, err := o.validateDebateParticipant(proID); err != nil {
		routing.end(err, nil)
		return domain.QueryResponse{}, err
	}
	if _, err := o.validateDebateParticipant(conID); err != nil {
		routing.end(err, nil)
		return domain.QueryResponse{}, err
	}
	routing.end(nil, map[string]interface{}{"proModel": proID, "conModel": conID})

	personas := resolvePersonas(req.Council, proID, conID)
	if req.Council.GlobalPreset != "" {
		for id := range personas {
			preset := req.Council.GlobalPreset
			if rolePreset, ok := req.Council.RolePresets[id]; ok {
				preset = rolePreset
			}
			personas[id] = preset + " " + personas[id]
		}
	}

	maxTurns := req.Council.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 6
	}

	var modOpts *dialogue.ModeratorOptions
	if req.Council.Moderator.Enabled {
		modOpts = &dialogue.ModeratorOptions{
			Enabled:          true,
			Frequency:        req.Council.Moderator.Frequency,
			MaxInterjections: req.Council.Moderator.MaxInterjections,
			ModeratorModelID: req.Council.Moderator.ModelID,
		}
	}

	generation := o.beginStage(queryID, "generation", map[string]interface{}{"proModel": proID, "conModel": conID})
	result, err := o.dialogue.RunDebate(ctx, [2]string{proID, conID}, req.Query, personas, pre.composedPrompt,
		maxTurns, req.Council.DynamicTermination, req.Temperature, o.cfg.ConsensusRoundTokens, modOpts)
	if err != nil {
		generation.end(err, nil)
		return domain.QueryResponse{}, fmt.Errorf("run debate: %w", err)
	}
	generation.end(nil, map[string]interface{}{"turns": result.Turns, "totalTokens": result.TotalTokens})
	o.recordFlow(queryID, proID)
	o.recordFlow(queryID, conID)

	metadata := map[string]interface{}{
		"proModel":              proID,
		"conModel":              conID,
		"turns":                 result.Turns,
		"terminationReason":     string(result.TerminationReason),
		"moderatorInterjections": result.ModeratorInterjections,
		"totalTokens":           result.TotalTokens,
	}

	if req.Council.PostDebateAnalysis {
		analysis, _, _, err := o.generate(ctx, queryID, proID, buildModeratorAnalysisPrompt(result), o.cfg.ConsensusRoundTokens, 0.3)
		if err == nil {
			metadata["moderatorAnalysis"] = analysis
		}
	}

	return domain.QueryResponse{Response: result.Synthesis, Metadata: metadata}, nil
}

func buildModeratorAnalysisPrompt(result domain.DialogueResult) string {
	var b strings.Builder
	b.WriteString("Provide a structured moderator analysis of the following debate: who made the stronger case, what was left unresolved, and what evidence was most persuasive.\n\n")
	for _, turn := range result.Turns {
		fmt.Fprintf(&b, "[%s] %s\n", turn.Position, turn.Content)
	}
	return b.String()
}
