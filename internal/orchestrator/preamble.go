package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/tutu-network/orchestrator/internal/domain"
	"github.com/tutu-network/orchestrator/internal/retrieval"
)

// preamble holds the preamble's output: the composed prompt plus
// instrumentation details carried forward into later metric recording.
type preamble struct {
	composedPrompt  string
	retrievalResult *retrievalOutcome
	webSearchText   string
	retrievalMillis float64
}

type retrievalOutcome struct {
	tokensUsed   int
	cacheHit     bool
	candidates   int
}

// buildPreamble runs the optional web-search and retrieval collaborators
// (degrading silently on failure) and composes the final user prompt
// per spec.md §4.7's block ordering.
func (o *Orchestrator) buildPreamble(ctx context.Context, queryID string, req domain.QueryRequest) preamble {
	var webText string
	if req.UseWebSearch && o.webSearch != nil {
		text, err := o.webSearch.Search(ctx, req.Query)
		if err != nil {
			o.publish(domain.EventError, domain.SeverityWarning, fmt.Sprintf("web search failed: %v", err), nil)
		} else {
			webText = text
		}
	}

	var docText string
	var outcome *retrievalOutcome
	var retrievalMillis float64
	if req.UseContext && o.retrieval != nil {
		stage := o.beginStage(queryID, "cgrag", nil)
		result, err := o.retrieval.Retrieve(ctx, req.Query, req.MaxTokens, 10)
		if err != nil {
			o.publish(domain.EventError, domain.SeverityWarning, fmt.Sprintf("retrieval failed: %v", err), nil)
			retrievalMillis = stage.end(err, nil)
		} else {
			docText = joinArtifacts(result.Artifacts)
			outcome = &retrievalOutcome{tokensUsed: result.TokensUsed, cacheHit: result.CacheHit, candidates: result.CandidatesConsidered}
			retrievalMillis = stage.end(nil, map[string]interface{}{
				"artifacts":  len(result.Artifacts),
				"tokensUsed": result.TokensUsed,
				"cacheHit":   result.CacheHit,
			})
		}
	}

	return preamble{
		composedPrompt:  composePrompt(req.SystemPrompt, webText, docText, req.Query),
		retrievalResult: outcome,
		webSearchText:   webText,
		retrievalMillis: retrievalMillis,
	}
}

func joinArtifacts(artifacts []retrieval.Artifact) string {
	parts := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		parts = append(parts, fmt.Sprintf("%s (chunk %d):\n%s", a.FilePath, a.ChunkIndex, a.Content))
	}
	return strings.Join(parts, "\n\n")
}

// composePrompt assembles the final user prompt: optional system
// prompt, optional web-search block, optional retrieval block, then the
// query with an instruction line. Each block is separated by a visible
// delimiter. If both blocks are empty, the query (plus system prompt,
// if present) passes through unmodified.
func composePrompt(systemPrompt, webText, docText, query string) string {
	const delimiter = "\n---\n"
	if webText == "" && docText == "" {
		var blocks []string
		if systemPrompt != "" {
			blocks = append(blocks, systemPrompt)
		}
		blocks = append(blocks, query)
		return strings.Join(blocks, delimiter)
	}

	var blocks []string
	if systemPrompt != "" {
		blocks = append(blocks, systemPrompt)
	}
	if webText != "" {
		blocks = append(blocks, "Web Search Results:\n"+webText)
	}
	if docText != "" {
		blocks = append(blocks, "Documentation Context:\n"+docText)
	}
	blocks = append(blocks, fmt.Sprintf("%s\n\nAnswer the above using any context provided.", query))
	return strings.Join(blocks, delimiter)
}
