// Package modelregistry persists a domain.ModelRegistry as a single JSON
// document, guards every mutation behind one lock, and writes atomically
// (write-to-temp, then rename), following the teacher's manifest
// read/write conventions.
package modelregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// Store wraps a domain.ModelRegistry with a lock and a backing file path.
// All mutation methods persist atomically before returning.
type Store struct {
	mu   sync.RWMutex
	path string
	reg  *domain.ModelRegistry
}

// wireFormat mirrors the registry file format of spec.md §6: portRange as
// a two-element array rather than an object.
type wireFormat struct {
	Models         map[string]*domain.DiscoveredModel `json:"models"`
	ScanPath       string                              `json:"scanPath"`
	LastScan       string                              `json:"lastScan"`
	PortRange      [2]int                              `json:"portRange"`
	TierThresholds domain.TierThresholds               `json:"tierThresholds"`
}

// Open loads the registry at path, or returns an empty registry rooted at
// scanPath if the file does not exist yet. A file that fails schema
// validation is rejected rather than silently accepted.
func Open(path, scanPath string, portRange domain.PortRange, thresholds domain.TierThresholds) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Store{
			path: path,
			reg:  domain.NewRegistry(scanPath, portRange, thresholds),
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}

	var wire wireFormat
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrRegistryCorrupt)
	}
	if wire.Models == nil {
		return nil, fmt.Errorf("%s: missing models field: %w", path, domain.ErrRegistryCorrupt)
	}

	reg := &domain.ModelRegistry{
		Models:         wire.Models,
		ScanPath:       wire.ScanPath,
		PortRange:      domain.PortRange{Lo: wire.PortRange[0], Hi: wire.PortRange[1]},
		TierThresholds: wire.TierThresholds,
	}
	if reg.ScanPath == "" {
		reg.ScanPath = scanPath
	}
	for id, m := range reg.Models {
		if m.ModelID == "" {
			m.ModelID = id
		}
	}

	return &Store{path: path, reg: reg}, nil
}

// Registry returns the registry the Store holds, not a copy. Callers must
// not mutate DiscoveredModel pointers obtained through it; use the
// Store's setter methods instead.
func (s *Store) Registry() *domain.ModelRegistry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg
}

// Replace swaps the in-memory registry (used after a rescan) and
// persists it.
func (s *Store) Replace(reg *domain.ModelRegistry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg = reg
	return s.persistLocked()
}

// SetTierOverride sets or clears (override == nil) a model's tier
// override.
func (s *Store) SetTierOverride(modelID string, override *domain.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.reg.Models[modelID]
	if !ok {
		return fmt.Errorf("%s: %w", modelID, domain.ErrModelNotFound)
	}
	if override != nil && !override.Valid() {
		return fmt.Errorf("invalid tier %q", *override)
	}
	m.TierOverride = override
	return s.persistLocked()
}

// SetThinkingOverride sets or clears a model's thinking override.
func (s *Store) SetThinkingOverride(modelID string, override *bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.reg.Models[modelID]
	if !ok {
		return fmt.Errorf("%s: %w", modelID, domain.ErrModelNotFound)
	}
	m.ThinkingOverride = override
	return s.persistLocked()
}

// SetEnabled toggles a model's enabled flag. Enabling a model whose port
// collides with another enabled entry is rejected (port-uniqueness
// invariant).
func (s *Store) SetEnabled(modelID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.reg.Models[modelID]
	if !ok {
		return fmt.Errorf("%s: %w", modelID, domain.ErrModelNotFound)
	}
	if enabled && m.Port != nil {
		for id, other := range s.reg.Models {
			if id == modelID || !other.Enabled || other.Port == nil {
				continue
			}
			if *other.Port == *m.Port {
				return fmt.Errorf("port %d used by %s: %w", *m.Port, id, domain.ErrPortInUse)
			}
		}
	}
	m.Enabled = enabled
	return s.persistLocked()
}

// SetRuntimeOverrides replaces a model's per-instance runtime overrides.
func (s *Store) SetRuntimeOverrides(modelID string, overrides domain.RuntimeOverrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.reg.Models[modelID]
	if !ok {
		return fmt.Errorf("%s: %w", modelID, domain.ErrModelNotFound)
	}
	m.Runtime = overrides
	return s.persistLocked()
}

// BulkSetEnabled enables or disables every model in the registry.
func (s *Store) BulkSetEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.reg.Models {
		m.Enabled = enabled
	}
	return s.persistLocked()
}

// UpdatePortRange changes the configured port range for future discovery
// runs. It does not reassign ports on existing entries.
func (s *Store) UpdatePortRange(r domain.PortRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg.PortRange = r
	return s.persistLocked()
}

// persistLocked writes the registry atomically. Caller must hold s.mu.
func (s *Store) persistLocked() error {
	wire := wireFormat{
		Models:         s.reg.Models,
		ScanPath:       s.reg.ScanPath,
		LastScan:       s.reg.LastScan.Format("2006-01-02T15:04:05Z07:00"),
		PortRange:      [2]int{s.reg.PortRange.Lo, s.reg.PortRange.Hi},
		TierThresholds: s.reg.TierThresholds,
	}
	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp registry file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename registry file: %w", err)
	}
	return nil
}
