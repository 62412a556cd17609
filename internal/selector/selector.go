// Package selector picks a healthy model for a requested tier and forms
// diverse pairs for debate mode, approximating round-robin by tracking
// each model's lifetime request count.
package selector

import (
	"fmt"
	"sync/atomic"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// HealthChecker reports whether a model currently has a live, ready
// server. The Selector depends on this narrow interface rather than on
// the Server Manager directly.
type HealthChecker interface {
	IsHealthy(modelID string) bool
}

// Selector picks models from a registry, consulting a HealthChecker.
type Selector struct {
	registry *domain.ModelRegistry
	health   HealthChecker
}

// New returns a Selector over registry, using health to filter
// unhealthy models.
func New(registry *domain.ModelRegistry, health HealthChecker) *Selector {
	return &Selector{registry: registry, health: health}
}

// Select picks a healthy enabled model in tier with the lowest lifetime
// request count, incrementing that model's counter before returning.
func (s *Selector) Select(tier domain.Tier) (*domain.DiscoveredModel, error) {
	candidates := s.healthyInTier(tier)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("tier %s: %w", tier, domain.ErrNoModelsAvailable)
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if atomic.LoadInt64(&c.RequestCount) < atomic.LoadInt64(&best.RequestCount) {
			best = c
		}
	}
	atomic.AddInt64(&best.RequestCount, 1)
	return best, nil
}

// SelectDebatePair returns two enabled models from different tiers when
// possible, else any two enabled models. It does not require health —
// the orchestrator validates liveness separately before starting a
// debate (spec.md §4.7 mode: council debate).
func (s *Selector) SelectDebatePair() (pro, con *domain.DiscoveredModel, err error) {
	enabled := s.registry.Enabled()
	if len(enabled) < 2 {
		return nil, nil, fmt.Errorf("debate pair: %w", domain.ErrNotEnoughModels)
	}

	byTier := make(map[domain.Tier][]*domain.DiscoveredModel)
	for _, m := range enabled {
		byTier[m.EffectiveTier()] = append(byTier[m.EffectiveTier()], m)
	}

	var tiers []domain.Tier
	for t, ms := range byTier {
		if len(ms) > 0 {
			tiers = append(tiers, t)
		}
	}
	if len(tiers) >= 2 {
		return byTier[tiers[0]][0], byTier[tiers[1]][0], nil
	}
	return enabled[0], enabled[1], nil
}

// healthyInTier returns enabled models in tier whose Server Manager
// health is currently reporting ready.
func (s *Selector) healthyInTier(tier domain.Tier) []*domain.DiscoveredModel {
	var out []*domain.DiscoveredModel
	for _, m := range s.registry.EnabledInTier(tier) {
		if s.health == nil || s.health.IsHealthy(m.ModelID) {
			out = append(out, m)
		}
	}
	return out
}
