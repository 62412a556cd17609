// Package discovery scans a directory for quantized model artifacts,
// parses their filenames into structured metadata, assigns performance
// tiers, allocates ports, and preserves user overrides across rescans.
//
// The scanning and warn-and-skip-on-error style follows the teacher's
// registry Pull/health-check conventions: unreadable or unparseable
// entries are logged and skipped rather than aborting the whole scan.
package discovery

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// thinkingKeywords are filename substrings (case-insensitive) that mark
// a model as a "thinking"/reasoning model for tier-assignment purposes.
var thinkingKeywords = []string{"think", "reasoning", "r1", "o1", "cot", "qwq"}

// skipSuffixes are partial-download / temp artifacts the original
// implementation also ignores during a scan (SPEC_FULL.md §12).
var skipSuffixes = []string{".part", ".tmp", ".download", ".partial"}

// Options configures a discovery run.
type Options struct {
	ScanRoot       string
	PortRange      domain.PortRange
	TierThresholds domain.TierThresholds
}

// Discover walks opts.ScanRoot recursively, parses every *.gguf-class
// file it finds, and returns a freshly populated registry. It never
// mutates an existing registry — callers that need override
// preservation use RescanAndUpdate.
func Discover(opts Options) (*domain.ModelRegistry, error) {
	info, err := os.Stat(opts.ScanRoot)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("discover %s: %w", opts.ScanRoot, domain.ErrScanRootMissing)
	}

	reg := domain.NewRegistry(opts.ScanRoot, opts.PortRange, opts.TierThresholds)

	var found []*domain.DiscoveredModel
	err = filepath.WalkDir(opts.ScanRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			log.Printf("[discovery] warn: cannot read %s: %v", path, walkErr)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !isModelFile(path) {
			return nil
		}
		m, perr := parseFile(path, opts.TierThresholds)
		if perr != nil {
			log.Printf("[discovery] warn: skipping %s: %v", path, perr)
			return nil
		}
		found = append(found, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", opts.ScanRoot, err)
	}

	sortDiscovered(found)
	assignPorts(found, opts.PortRange)

	for _, m := range found {
		reg.Models[m.ModelID] = m
	}
	reg.LastScan = time.Now()

	return reg, nil
}

// RescanAndUpdate runs Discover with opts (opts.ScanRoot is scanned;
// existing.ScanPath is not consulted) and copies TierOverride/ThinkingOverride/
// Enabled from existing into any model id present in both registries.
func RescanAndUpdate(existing *domain.ModelRegistry, opts Options) (*domain.ModelRegistry, error) {
	fresh, err := Discover(opts)
	if err != nil {
		return nil, err
	}
	for id, m := range fresh.Models {
		if prev, ok := existing.Models[id]; ok {
			m.TierOverride = prev.TierOverride
			m.ThinkingOverride = prev.ThinkingOverride
			m.Enabled = prev.Enabled
		}
	}
	return fresh, nil
}

func isModelFile(path string) bool {
	lower := strings.ToLower(path)
	if !strings.HasSuffix(lower, ".gguf") {
		return false
	}
	base := filepath.Base(lower)
	if strings.HasPrefix(base, ".") {
		return false
	}
	for _, suf := range skipSuffixes {
		if strings.HasSuffix(lower, suf) {
			return false
		}
	}
	return true
}

// sortDiscovered orders models by (tier, descending size, quantization),
// matching spec.md §4.1's documented sort order. Tier order is
// FAST < BALANCED < POWERFUL alphabetically-inconvenient, so we rank
// explicitly.
func sortDiscovered(models []*domain.DiscoveredModel) {
	rank := map[domain.Tier]int{domain.TierFast: 0, domain.TierBalanced: 1, domain.TierPowerful: 2}
	sort.SliceStable(models, func(i, j int) bool {
		a, b := models[i], models[j]
		if rank[a.AssignedTier] != rank[b.AssignedTier] {
			return rank[a.AssignedTier] < rank[b.AssignedTier]
		}
		if a.SizeParams != b.SizeParams {
			return a.SizeParams > b.SizeParams
		}
		return a.Quantization < b.Quantization
	})
}

// assignPorts walks models in their current order and assigns the next
// free port from the range. Models past the end of the range receive no
// port — a logged degradation, not a failure (spec.md §4.1).
func assignPorts(models []*domain.DiscoveredModel, r domain.PortRange) {
	next := r.Lo
	for _, m := range models {
		if next > r.Hi {
			log.Printf("[discovery] warn: port range exhausted, %s has no port", m.ModelID)
			continue
		}
		port := next
		m.Port = &port
		next++
	}
}

func isThinking(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range thinkingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// assignTier implements the ordered tier rule of spec.md §4.1.
func assignTier(sizeParams float64, quant domain.Quantization, thinking bool, t domain.TierThresholds) domain.Tier {
	if thinking {
		return domain.TierPowerful
	}
	if sizeParams >= t.PowerfulMin {
		return domain.TierPowerful
	}
	if sizeParams < t.FastMax && isFastQuant(quant) {
		return domain.TierFast
	}
	return domain.TierBalanced
}

func isFastQuant(q domain.Quantization) bool {
	switch {
	case strings.HasPrefix(string(q), "Q2"):
		return true
	case strings.HasPrefix(string(q), "Q3"):
		return true
	case q == domain.QuantQ4_0, q == "Q4_K", q == domain.QuantQ4KM, q == "Q4_K_S":
		return true
	default:
		return false
	}
}
