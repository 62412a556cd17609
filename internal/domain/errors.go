// Package domain holds the entity and value types shared across the
// orchestrator core, plus the sentinel errors components raise across
// package boundaries. Domain types are pure — no infrastructure imports.
package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	// Discovery / registry errors.
	ErrScanRootMissing  = errors.New("scan root does not exist")
	ErrUnparseableName  = errors.New("filename does not match any known model grammar")
	ErrUnknownQuant     = errors.New("quantization token not in closed set")
	ErrPortRangeExhausted = errors.New("port range exhausted")
	ErrModelNotFound    = errors.New("model not found in registry")
	ErrRegistryCorrupt  = errors.New("registry file failed schema validation")
	ErrPortInUse        = errors.New("port already in use within registry")

	// Server lifecycle errors.
	ErrNoPort            = errors.New("model has no assigned port")
	ErrBinaryMissing     = errors.New("inference server binary not found")
	ErrStartupFailed     = errors.New("inference server failed to start")
	ErrServerNotTracked  = errors.New("server not tracked by manager")

	// Selection / generation errors.
	ErrNoModelsAvailable = errors.New("no healthy models available in tier")
	ErrModelUnavailable  = errors.New("selected model is unavailable")
	ErrGenerationFailed  = errors.New("inference server returned an error")
	ErrQueryTimeout      = errors.New("query timed out")
	ErrNotEnoughModels   = errors.New("not enough enabled models for this mode")

	// Instance errors.
	ErrInstanceNotFound   = errors.New("instance not found")
	ErrInstanceNotStopped = errors.New("instance must be stopped before deletion")
	ErrInstanceSlotsFull  = errors.New("no free instance numbers for base model")

	// Code-chat errors.
	ErrPathEscapesWorkspace = errors.New("resolved path escapes workspace root")
	ErrConfirmationTimeout  = errors.New("tool confirmation timed out")
	ErrConfirmationRejected = errors.New("tool confirmation rejected")
	ErrSessionCancelled     = errors.New("session cancelled")
	ErrUnknownTool          = errors.New("unknown tool")

	// Validation.
	ErrInvalidRequest = errors.New("request failed validation")
)
