// Package dialogue runs two-participant debates: alternating PRO/CON
// turns, optional moderator interjections, and dynamic termination
// detection (concession, stalemate-by-repetition, stalemate-by-
// disengagement), followed by a neutral synthesis pass.
package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// ModelCaller generates one completion from a named model. Callers
// outside this package are responsible for resolving modelID to a
// running server (Selector + Inference Client).
type ModelCaller interface {
	Generate(ctx context.Context, modelID, prompt string, maxTokens int, temperature float64) (string, error)
}

// ModeratorOptions configures optional moderator interjections.
type ModeratorOptions struct {
	Enabled          bool
	Frequency        int
	MaxInterjections int
	ModeratorModelID string
}

// concessionKeywords are matched case-insensitively against a turn's
// content to detect CONCESSION_DETECTED (spec.md §4.6).
var concessionKeywords = []string{
	"you're right",
	"i agree",
	"fair point",
	"i concede",
	"you've convinced me",
	"i accept your argument",
	"you make a valid point",
}

const jaccardStalemateThreshold = 0.6
const disengagementTokenThreshold = 20

// Engine runs debates via a ModelCaller.
type Engine struct {
	caller ModelCaller
}

// New returns an Engine that generates turns through caller.
func New(caller ModelCaller) *Engine {
	return &Engine{caller: caller}
}

// RunDebate runs the alternating-turn loop described in spec.md §4.6 and
// returns the full transcript, synthesis, and termination reason.
func (e *Engine) RunDebate(
	ctx context.Context,
	participants [2]string,
	query string,
	personas map[string]string,
	contextText string,
	maxTurns int,
	dynamicTermination bool,
	temperature float64,
	perTurnMaxTokens int,
	moderatorOpts *ModeratorOptions,
) (domain.DialogueResult, error) {
	var result domain.DialogueResult
	result.TerminationReason = domain.TerminationMaxTurns

	interjections := 0
	for t := 1; t <= maxTurns; t++ {
		speaker := participants[(t-1)%2]
		position := domain.PositionPro
		if t%2 == 0 {
			position = domain.PositionCon
		}
		opponent := participants[t%2]

		prompt := e.buildTurnPrompt(query, personas[speaker], position, opponent, contextText, result.NonModeratorTurns())

		content, err := e.caller.Generate(ctx, speaker, prompt, perTurnMaxTokens, temperature)
		if err != nil {
			content = fmt.Sprintf("[Error: model %s failed to respond]", speaker)
		}

		turn := domain.DialogueTurn{
			TurnNumber: t,
			SpeakerID:  speaker,
			Position:   position,
			Persona:    personas[speaker],
			Content:    content,
			Timestamp:  time.Now(),
			Tokens:     countTokens(content),
		}
		result.Turns = append(result.Turns, turn)
		result.TotalTokens += turn.Tokens

		if moderatorOpts != nil && moderatorOpts.Enabled &&
			moderatorOpts.Frequency > 0 && t%moderatorOpts.Frequency == 0 &&
			interjections < moderatorOpts.MaxInterjections {
			if guidance, ok := e.runModerator(ctx, moderatorOpts, result.Turns, moderatorOpts.Frequency); ok {
				interjections++
				result.Turns = append(result.Turns, domain.DialogueTurn{
					TurnNumber: t,
					SpeakerID:  moderatorOpts.ModeratorModelID,
					Content:    guidance,
					Timestamp:  time.Now(),
					Moderator:  true,
				})
			}
		}

		nonMod := result.NonModeratorTurns()
		if dynamicTermination && len(nonMod) >= 4 {
			if reason, done := checkTermination(nonMod); done {
				result.TerminationReason = reason
				break
			}
		}
	}
	result.ModeratorInterjections = interjections

	synthesis, err := e.synthesize(ctx, participants[0], query, result.NonModeratorTurns(), temperature)
	if err != nil {
		synthesis = "[Error: synthesis unavailable]"
	}
	result.Synthesis = synthesis

	return result, nil
}

func (e *Engine) buildTurnPrompt(query, persona string, position domain.DebatePosition, opponent, contextText string, prior []domain.DialogueTurn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", query)
	if persona != "" {
		fmt.Fprintf(&b, "Your persona: %s\n", persona)
	}
	fmt.Fprintf(&b, "Your position: %s\nOpponent: %s\n", position, opponent)
	if contextText != "" {
		fmt.Fprintf(&b, "\nContext:\n%s\n", contextText)
	}
	if len(prior) > 0 {
		b.WriteString("\nTranscript so far:\n")
		for _, turn := range prior {
			fmt.Fprintf(&b, "[%s] %s\n", turn.Position, turn.Content)
		}
	}
	if len(prior) == 0 {
		b.WriteString("\nOpen the debate.\n")
	} else {
		b.WriteString("\nAddress your opponent's last points.\n")
	}
	return b.String()
}

func (e *Engine) runModerator(ctx context.Context, opts *ModeratorOptions, turns []domain.DialogueTurn, frequency int) (string, bool) {
	window := 2 * frequency
	start := len(turns) - window
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	b.WriteString("Review the following debate turns. If intervention is not needed, reply with exactly \"no intervention needed\". Otherwise, provide brief guidance.\n\n")
	for _, turn := range turns[start:] {
		fmt.Fprintf(&b, "[%s] %s\n", turn.Position, turn.Content)
	}

	reply, err := e.caller.Generate(ctx, opts.ModeratorModelID, b.String(), 200, 0.3)
	if err != nil {
		return "", false
	}
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(reply, "no intervention needed") {
		return "", false
	}
	return reply, true
}

func (e *Engine) synthesize(ctx context.Context, modelID, query string, turns []domain.DialogueTurn, temperature float64) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\nFull transcript:\n", query)
	for _, turn := range turns {
		fmt.Fprintf(&b, "[%s] %s\n", turn.Position, turn.Content)
	}
	b.WriteString("\nWrite a neutral summary identifying the strongest arguments, points of agreement, points of disagreement, and any shifts in position.\n")
	return e.caller.Generate(ctx, modelID, b.String(), 800, temperature)
}

// checkTermination inspects the last four non-moderator turns for the
// dynamic-termination signals of spec.md §4.6.
func checkTermination(turns []domain.DialogueTurn) (domain.TerminationReason, bool) {
	last4 := turns[len(turns)-4:]
	lastTurn := last4[len(last4)-1]

	lowered := strings.ToLower(lastTurn.Content)
	for _, kw := range concessionKeywords {
		if strings.Contains(lowered, kw) {
			return domain.TerminationConcession, true
		}
	}

	if avgJaccard(last4) > jaccardStalemateThreshold {
		return domain.TerminationStalemateRepetition, true
	}

	last2 := last4[2:]
	if wordCount(last2[0].Content) < disengagementTokenThreshold && wordCount(last2[1].Content) < disengagementTokenThreshold {
		return domain.TerminationStalemateDisengagement, true
	}

	return "", false
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// countTokens applies the words*1.3 heuristic documented in spec.md §9;
// the dialogue engine has no tokenizer of its own to ask.
func countTokens(s string) int {
	return int(float64(len(strings.Fields(s))) * 1.3)
}

// avgJaccard computes the pairwise Jaccard similarity of long-token sets
// (tokens longer than 4 chars, case-folded) across turns, averaged over
// all pairs.
func avgJaccard(turns []domain.DialogueTurn) float64 {
	sets := make([]map[string]bool, len(turns))
	for i, turn := range turns {
		sets[i] = longTokenSet(turn.Content)
	}

	var total float64
	var pairs int
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			total += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

func longTokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		if len(tok) > 4 {
			out[tok] = true
		}
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
