package domain

import "testing"

func TestValidQuantization(t *testing.T) {
	cases := []struct {
		in   string
		want bool
		norm Quantization
	}{
		{"q4_k_m", true, "Q4_K_M"},
		{"Q8_0", true, "Q8_0"},
		{"bogus", false, ""},
		{"f16", true, "F16"},
	}
	for _, c := range cases {
		got, ok := ValidQuantization(c.in)
		if ok != c.want {
			t.Errorf("ValidQuantization(%q) ok = %v, want %v", c.in, ok, c.want)
		}
		if ok && got != c.norm {
			t.Errorf("ValidQuantization(%q) = %q, want %q", c.in, got, c.norm)
		}
	}
}

func TestEffectiveTier(t *testing.T) {
	m := &DiscoveredModel{AssignedTier: TierBalanced}
	if m.EffectiveTier() != TierBalanced {
		t.Fatalf("expected BALANCED default")
	}
	override := TierPowerful
	m.TierOverride = &override
	if m.EffectiveTier() != TierPowerful {
		t.Fatalf("expected override to win")
	}
}

func TestEffectiveThinking(t *testing.T) {
	m := &DiscoveredModel{IsThinkingModel: false}
	if m.EffectiveThinking() {
		t.Fatalf("expected false default")
	}
	yes := true
	m.ThinkingOverride = &yes
	if !m.EffectiveThinking() {
		t.Fatalf("expected override to win")
	}
}

func TestTruncateMessage(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	got := TruncateMessage(string(long))
	if len(got) != maxEventMessageLen {
		t.Fatalf("len = %d, want %d", len(got), maxEventMessageLen)
	}
	if TruncateMessage("short") != "short" {
		t.Fatalf("short message should pass through unchanged")
	}
}

func TestSeverityAtLeast(t *testing.T) {
	if !SeverityError.AtLeast(SeverityWarning) {
		t.Fatalf("ERROR should be >= WARNING")
	}
	if SeverityInfo.AtLeast(SeverityWarning) {
		t.Fatalf("INFO should be < WARNING")
	}
}

func TestRegistryUsedPorts(t *testing.T) {
	r := NewRegistry("/models", PortRange{Lo: 9000, Hi: 9010}, DefaultTierThresholds())
	p1, p2 := 9001, 9002
	r.Models["a"] = &DiscoveredModel{ModelID: "a", Enabled: true, Port: &p1}
	r.Models["b"] = &DiscoveredModel{ModelID: "b", Enabled: false, Port: &p2}
	used := r.UsedPorts()
	if len(used) != 1 {
		t.Fatalf("expected 1 used port (disabled models excluded), got %d", len(used))
	}
	if used[9001] != "a" {
		t.Fatalf("expected port 9001 -> a")
	}
}
