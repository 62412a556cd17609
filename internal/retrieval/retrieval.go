// Package retrieval defines the narrow interface the Orchestrator
// consults for CGRAG-style context retrieval. The real index builder
// lives outside the core (spec's external collaborators); this package
// only carries the interface and a null implementation for default
// wiring and tests.
package retrieval

import (
	"context"
	"os"
)

// Config names the single resolved location of the prebuilt CGRAG vector
// index this orchestrator consults (spec.md §9's retrieval-path
// ambiguity, resolved as one explicit config field — no ad-hoc
// "project root" fallback).
type Config struct {
	IndexDir string
}

// IndexExists reports whether cfg's configured index directory exists,
// for the Topology Tracker's periodic retrieval-health probe
// (spec.md §4.10).
func IndexExists(cfg Config) bool {
	if cfg.IndexDir == "" {
		return false
	}
	info, err := os.Stat(cfg.IndexDir)
	return err == nil && info.IsDir()
}

// Artifact is one retrieved chunk.
type Artifact struct {
	FilePath   string  `json:"filePath"`
	ChunkIndex int     `json:"chunkIndex"`
	Content    string  `json:"content"`
	Relevance  float64 `json:"relevance"`
	Tokens     int     `json:"tokens"`
}

// Result is the outcome of a retrieve call.
type Result struct {
	Artifacts            []Artifact `json:"artifacts"`
	TokensUsed           int        `json:"tokensUsed"`
	CandidatesConsidered int        `json:"candidatesConsidered"`
	RetrievalTimeMs      float64    `json:"retrievalTimeMs"`
	CacheHit             bool       `json:"cacheHit"`
}

// Engine is the collaborator interface the Orchestrator depends on.
type Engine interface {
	Retrieve(ctx context.Context, query string, tokenBudget, maxArtifacts int) (Result, error)
}

// NullEngine always returns an empty result with no candidates
// considered. It is the default wiring when no retrieval backend is
// configured.
type NullEngine struct{}

func (NullEngine) Retrieve(ctx context.Context, query string, tokenBudget, maxArtifacts int) (Result, error) {
	return Result{Artifacts: []Artifact{}}, nil
}
