package selector

import (
	"testing"

	"github.com/tutu-network/orchestrator/internal/domain"
)

type fakeHealth struct {
	unhealthy map[string]bool
}

func (f fakeHealth) IsHealthy(modelID string) bool {
	return !f.unhealthy[modelID]
}

func newRegistry(models ...*domain.DiscoveredModel) *domain.ModelRegistry {
	r := domain.NewRegistry("/models", domain.PortRange{Lo: 1, Hi: 2}, domain.DefaultTierThresholds())
	for _, m := range models {
		r.Models[m.ModelID] = m
	}
	return r
}

func TestSelect_PicksLowestRequestCount(t *testing.T) {
	a := &domain.DiscoveredModel{ModelID: "a", Enabled: true, AssignedTier: domain.TierFast, RequestCount: 5}
	b := &domain.DiscoveredModel{ModelID: "b", Enabled: true, AssignedTier: domain.TierFast, RequestCount: 1}
	s := New(newRegistry(a, b), nil)

	got, err := s.Select(domain.TierFast)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got.ModelID != "b" {
		t.Fatalf("expected b (lowest count), got %s", got.ModelID)
	}
	if b.RequestCount != 2 {
		t.Fatalf("expected request count incremented, got %d", b.RequestCount)
	}
}

func TestSelect_FiltersUnhealthy(t *testing.T) {
	a := &domain.DiscoveredModel{ModelID: "a", Enabled: true, AssignedTier: domain.TierFast}
	b := &domain.DiscoveredModel{ModelID: "b", Enabled: true, AssignedTier: domain.TierFast}
	s := New(newRegistry(a, b), fakeHealth{unhealthy: map[string]bool{"b": true}})

	got, err := s.Select(domain.TierFast)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got.ModelID != "a" {
		t.Fatalf("expected only-healthy a, got %s", got.ModelID)
	}
}

func TestSelect_NoneAvailable(t *testing.T) {
	s := New(newRegistry(), nil)
	if _, err := s.Select(domain.TierPowerful); err == nil {
		t.Fatalf("expected NoModelsAvailable error")
	}
}

func TestSelectDebatePair_PrefersDifferentTiers(t *testing.T) {
	a := &domain.DiscoveredModel{ModelID: "a", Enabled: true, AssignedTier: domain.TierFast}
	b := &domain.DiscoveredModel{ModelID: "b", Enabled: true, AssignedTier: domain.TierPowerful}
	s := New(newRegistry(a, b), nil)

	pro, con, err := s.SelectDebatePair()
	if err != nil {
		t.Fatalf("select pair: %v", err)
	}
	if pro.EffectiveTier() == con.EffectiveTier() {
		t.Fatalf("expected different tiers, got %s and %s", pro.EffectiveTier(), con.EffectiveTier())
	}
}

func TestSelectDebatePair_NotEnoughModels(t *testing.T) {
	a := &domain.DiscoveredModel{ModelID: "a", Enabled: true}
	s := New(newRegistry(a), nil)
	if _, _, err := s.SelectDebatePair(); err == nil {
		t.Fatalf("expected error with fewer than 2 enabled models")
	}
}
