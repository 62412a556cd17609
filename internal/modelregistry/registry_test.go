package modelregistry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tutu-network/orchestrator/internal/domain"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	s, err := Open(path, "/models", domain.PortRange{Lo: 9000, Hi: 9010}, domain.DefaultTierThresholds())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	port := 9001
	s.reg.Models["m1"] = &domain.DiscoveredModel{ModelID: "m1", Enabled: true, Port: &port, AssignedTier: domain.TierBalanced}
	if err := s.persistLocked(); err != nil {
		t.Fatalf("persist: %v", err)
	}
	return s, path
}

func TestOpen_MissingFileReturnsEmptyRegistry(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "registry.json"), "/models", domain.PortRange{Lo: 1, Hi: 2}, domain.DefaultTierThresholds())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(s.Registry().Models) != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestOpen_RejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, "/models", domain.PortRange{Lo: 1, Hi: 2}, domain.DefaultTierThresholds()); err == nil {
		t.Fatalf("expected error for corrupt registry file")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s, path := newTestStore(t)

	loaded, err := Open(path, "/models", s.reg.PortRange, s.reg.TierThresholds)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	m, ok := loaded.Registry().Models["m1"]
	if !ok {
		t.Fatalf("expected model m1 to survive round trip")
	}
	if m.AssignedTier != domain.TierBalanced || !m.Enabled || m.Port == nil || *m.Port != 9001 {
		t.Fatalf("round-tripped model mismatch: %+v", m)
	}
}

func TestSetTierOverride(t *testing.T) {
	s, _ := newTestStore(t)
	tier := domain.TierPowerful
	if err := s.SetTierOverride("m1", &tier); err != nil {
		t.Fatalf("set override: %v", err)
	}
	if got := s.Registry().Models["m1"].EffectiveTier(); got != domain.TierPowerful {
		t.Fatalf("effective tier = %v, want POWERFUL", got)
	}
}

func TestSetTierOverride_UnknownModel(t *testing.T) {
	s, _ := newTestStore(t)
	tier := domain.TierFast
	if err := s.SetTierOverride("missing", &tier); err == nil {
		t.Fatalf("expected error for unknown model")
	}
}

func TestSetEnabled_RejectsPortCollision(t *testing.T) {
	s, _ := newTestStore(t)
	port2 := 9001
	s.reg.Models["m2"] = &domain.DiscoveredModel{ModelID: "m2", Enabled: false, Port: &port2}

	if err := s.SetEnabled("m2", true); err == nil {
		t.Fatalf("expected port collision error")
	}
}

func TestBulkSetEnabled(t *testing.T) {
	s, _ := newTestStore(t)
	port2 := 9002
	s.reg.Models["m2"] = &domain.DiscoveredModel{ModelID: "m2", Enabled: true, Port: &port2}

	if err := s.BulkSetEnabled(false); err != nil {
		t.Fatalf("bulk disable: %v", err)
	}
	for id, m := range s.Registry().Models {
		if m.Enabled {
			t.Fatalf("model %s still enabled after bulk disable", id)
		}
	}
}
