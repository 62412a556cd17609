package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// The three ordered filename grammars of spec.md §6. First match wins.
var (
	// 1. lower-case, loose separators: family[version]?[-variant]?-SIZEb[-kind]?-quant.gguf
	pattern1 = regexp.MustCompile(`(?i)^([a-z]+)([0-9]+(?:\.[0-9]+)?)?(?:-([a-z0-9]+))?-([0-9]+(?:\.[0-9]+)?)b(?:-(instruct|chat|coder))?-([a-z0-9_]+)\.gguf$`)

	// 2. mixed-case with explicit capitalized Family-Variant-Version-Submodel-SizeB-Kind-Quant.
	pattern2 = regexp.MustCompile(`^([A-Z][A-Za-z0-9]*)-([A-Za-z0-9]+)(?:-([0-9]+(?:\.[0-9]+)?))?(?:-([A-Za-z0-9]+))?-([0-9]+(?:\.[0-9]+)?)B(?:-(Instruct|Chat|Coder))?-([A-Za-z0-9_]+)\.gguf$`)

	// 3. simple form: family-SIZEb-quant.gguf
	pattern3 = regexp.MustCompile(`(?i)^([a-z0-9]+)-([0-9]+(?:\.[0-9]+)?)[bB]-([a-z0-9_]+)\.gguf$`)
)

// parsed holds the raw grammar extraction before tier/id assignment.
type parsed struct {
	family     string
	variant    string
	version    string
	sizeParams float64
	quant      domain.Quantization
	isInstruct bool
	isCoder    bool
}

// parseFile parses one file path into a DiscoveredModel, running it
// through the three ordered grammars and then the tier rule.
func parseFile(path string, thresholds domain.TierThresholds) (*domain.DiscoveredModel, error) {
	base := filepath.Base(path)
	p, err := parseFilename(base)
	if err != nil {
		return nil, err
	}

	thinking := isThinking(base)
	tier := assignTier(p.sizeParams, p.quant, thinking, thresholds)

	m := &domain.DiscoveredModel{
		FilePath:        path,
		Family:          p.family,
		Variant:         p.variant,
		Version:         p.version,
		SizeParams:      p.sizeParams,
		Quantization:    p.quant,
		AssignedTier:    tier,
		Enabled:         true,
		IsThinkingModel: thinking,
		IsInstruct:      p.isInstruct,
		IsCoder:         p.isCoder,
	}
	m.ModelID = modelID(m)
	return m, nil
}

// parseFilename tries each grammar in order and returns the first match.
func parseFilename(name string) (parsed, error) {
	if m := pattern1.FindStringSubmatch(name); m != nil {
		return fromMatch(m[1], m[3], m[2], m[4], m[5], m[6])
	}
	if m := pattern2.FindStringSubmatch(name); m != nil {
		variant := m[2]
		if m[4] != "" {
			variant = variant + "-" + m[4]
		}
		return fromMatch(m[1], variant, m[3], m[5], m[6], m[7])
	}
	if m := pattern3.FindStringSubmatch(name); m != nil {
		return fromMatch(m[1], "", "", m[2], "", m[3])
	}
	return parsed{}, fmt.Errorf("%q: %w", name, domain.ErrUnparseableName)
}

// fromMatch assembles a parsed value from the grammar's named groups
// and validates the quantization token against the closed set.
func fromMatch(family, variant, version, sizeStr, kind, quantStr string) (parsed, error) {
	size, err := strconv.ParseFloat(sizeStr, 64)
	if err != nil {
		return parsed{}, fmt.Errorf("invalid size %q: %w", sizeStr, domain.ErrUnparseableName)
	}
	quant, ok := domain.ValidQuantization(quantStr)
	if !ok {
		return parsed{}, fmt.Errorf("%q: %w", quantStr, domain.ErrUnknownQuant)
	}
	kindLower := strings.ToLower(kind)
	return parsed{
		family:     strings.ToLower(family),
		variant:    strings.ToLower(variant),
		version:    version,
		sizeParams: size,
		quant:      quant,
		isInstruct: kindLower == "instruct" || kindLower == "chat",
		isCoder:    kindLower == "coder",
	}, nil
}

// modelID derives a deterministic id from family/variant/version/size/
// quantization/tier, stable across rescans of the same file content
// descriptors (spec.md §3 invariant).
func modelID(m *domain.DiscoveredModel) string {
	raw := strings.Join([]string{
		m.Family, m.Variant, m.Version,
		strconv.FormatFloat(m.SizeParams, 'f', -1, 64),
		string(m.Quantization), string(m.AssignedTier),
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s-%s", m.Family, hex.EncodeToString(sum[:])[:10])
}
