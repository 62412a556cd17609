package domain

import "time"

// ModelRegistry is the authoritative store of discovered models plus
// user overrides, scan metadata, and allocation policy. It is the
// in-memory form of the on-disk JSON document described in spec.md §6.
type ModelRegistry struct {
	Models         map[string]*DiscoveredModel `json:"models"`
	ScanPath       string                      `json:"scanPath"`
	LastScan       time.Time                   `json:"lastScan"`
	PortRange      PortRange                   `json:"portRange"`
	TierThresholds TierThresholds              `json:"tierThresholds"`
}

// NewRegistry returns an empty registry rooted at scanPath.
func NewRegistry(scanPath string, portRange PortRange, thresholds TierThresholds) *ModelRegistry {
	return &ModelRegistry{
		Models:         make(map[string]*DiscoveredModel),
		ScanPath:       scanPath,
		PortRange:      portRange,
		TierThresholds: thresholds,
	}
}

// Enabled returns all enabled models, in map-iteration order (callers
// that need a stable order should sort the result).
func (r *ModelRegistry) Enabled() []*DiscoveredModel {
	out := make([]*DiscoveredModel, 0, len(r.Models))
	for _, m := range r.Models {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// EnabledInTier returns enabled models whose effective tier matches t.
func (r *ModelRegistry) EnabledInTier(t Tier) []*DiscoveredModel {
	out := make([]*DiscoveredModel, 0)
	for _, m := range r.Models {
		if m.Enabled && m.EffectiveTier() == t {
			out = append(out, m)
		}
	}
	return out
}

// UsedPorts returns the set of ports currently assigned among enabled
// registry entries (used for the port-uniqueness invariant, spec.md §8,
// jointly with InstanceConfig ports).
func (r *ModelRegistry) UsedPorts() map[int]string {
	used := make(map[int]string)
	for id, m := range r.Models {
		if m.Enabled && m.Port != nil {
			used[*m.Port] = id
		}
	}
	return used
}
