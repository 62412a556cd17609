package domain

import "time"

// Tier is a coarse performance classification of a model.
type Tier string

const (
	TierFast     Tier = "FAST"
	TierBalanced Tier = "BALANCED"
	TierPowerful Tier = "POWERFUL"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFast, TierBalanced, TierPowerful:
		return true
	}
	return false
}

// Quantization is a closed-set tag describing the model artifact's weight
// precision. Tokens are normalized to upper case at parse time.
type Quantization string

const (
	QuantQ2K   Quantization = "Q2_K"
	QuantQ3KM  Quantization = "Q3_K_M"
	QuantQ4KM  Quantization = "Q4_K_M"
	QuantQ4_0  Quantization = "Q4_0"
	QuantQ5KM  Quantization = "Q5_K_M"
	QuantQ6K   Quantization = "Q6_K"
	QuantQ8_0  Quantization = "Q8_0"
	QuantF16   Quantization = "F16"
	QuantF32   Quantization = "F32"
)

// knownQuantizations is the closed set accepted at discovery time.
// Additional K-variants (Q3_K_S, Q4_K_S, ...) are accepted because the
// tier rule in spec.md §4.1 references Q4_K and Q4_K_S/Q4_K_M explicitly;
// the set below covers every token the filename grammar can produce.
var knownQuantizations = map[Quantization]bool{
	"Q2_K": true, "Q2_K_S": true,
	"Q3_K": true, "Q3_K_S": true, "Q3_K_M": true, "Q3_K_L": true,
	"Q4_0": true, "Q4_1": true, "Q4_K": true, "Q4_K_S": true, "Q4_K_M": true,
	"Q5_0": true, "Q5_1": true, "Q5_K": true, "Q5_K_S": true, "Q5_K_M": true,
	"Q6_K": true, "Q8_0": true, "F16": true, "F32": true,
}

// ValidQuantization reports whether q is in the closed set, after
// normalizing to upper case.
func ValidQuantization(q string) (Quantization, bool) {
	norm := Quantization(normalizeQuant(q))
	return norm, knownQuantizations[norm]
}

func normalizeQuant(q string) string {
	out := make([]byte, len(q))
	for i := 0; i < len(q); i++ {
		c := q[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// RuntimeOverrides holds per-model runtime parameters that override the
// global inference-server defaults.
type RuntimeOverrides struct {
	NGPULayers *int `json:"nGpuLayers,omitempty"`
	CtxSize    *int `json:"ctxSize,omitempty"`
	NThreads   *int `json:"nThreads,omitempty"`
	BatchSize  *int `json:"batchSize,omitempty"`
}

// DiscoveredModel represents one quantized artifact on disk.
type DiscoveredModel struct {
	ModelID  string `json:"modelId"`
	FilePath string `json:"filePath"`

	Family  string `json:"family"`
	Variant string `json:"variant,omitempty"`
	Version string `json:"version,omitempty"`

	SizeParams   float64      `json:"sizeParams"`
	Quantization Quantization `json:"quantization"`

	AssignedTier Tier `json:"assignedTier"`

	TierOverride     *Tier `json:"tierOverride,omitempty"`
	ThinkingOverride *bool `json:"thinkingOverride,omitempty"`
	Enabled          bool  `json:"enabled"`

	Port *int `json:"port,omitempty"`

	Runtime RuntimeOverrides `json:"runtime"`

	IsThinkingModel bool `json:"isThinkingModel"`
	IsInstruct      bool `json:"isInstruct"`
	IsCoder         bool `json:"isCoder"`

	// Lifetime request counter, used by the Model Selector's
	// round-robin-by-least-loaded approximation. Not persisted to the
	// registry file (it is runtime-only traffic state).
	RequestCount int64 `json:"-"`
}

// EffectiveTier returns TierOverride when set, else AssignedTier.
func (m *DiscoveredModel) EffectiveTier() Tier {
	if m.TierOverride != nil && m.TierOverride.Valid() {
		return *m.TierOverride
	}
	return m.AssignedTier
}

// EffectiveThinking returns ThinkingOverride when set, else IsThinkingModel.
func (m *DiscoveredModel) EffectiveThinking() bool {
	if m.ThinkingOverride != nil {
		return *m.ThinkingOverride
	}
	return m.IsThinkingModel
}

// PortRange is an inclusive [Lo, Hi] range used for port allocation.
type PortRange struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// TierThresholds configures the tier-assignment rule of spec.md §4.1.
type TierThresholds struct {
	PowerfulMin float64 `json:"powerfulMin"`
	FastMax     float64 `json:"fastMax"`
}

// DefaultTierThresholds matches spec.md's documented defaults.
func DefaultTierThresholds() TierThresholds {
	return TierThresholds{PowerfulMin: 14, FastMax: 7}
}

// ServerProcess wraps one running (or externally attached) inference
// process.
type ServerProcess struct {
	ModelID    string    `json:"modelId"`
	Port       int       `json:"port"`
	PID        int       `json:"pid,omitempty"`
	StartTime  time.Time `json:"startTime"`
	IsReady    bool      `json:"isReady"`
	IsExternal bool      `json:"isExternal"`
}

// ServerState enumerates the Server Manager's per-server state machine
// (spec.md §4.2).
type ServerState string

const (
	ServerStopped  ServerState = "STOPPED"
	ServerStarting ServerState = "STARTING"
	ServerActive   ServerState = "ACTIVE"
	ServerStopping ServerState = "STOPPING"
	ServerError    ServerState = "ERROR"
)

// InstanceStatus enumerates an InstanceConfig's lifecycle state.
type InstanceStatus string

const (
	InstanceStopped  InstanceStatus = "STOPPED"
	InstanceStarting InstanceStatus = "STARTING"
	InstanceActive   InstanceStatus = "ACTIVE"
	InstanceStopping InstanceStatus = "STOPPING"
	InstanceError    InstanceStatus = "ERROR"
)

// InstanceConfig is a named configuration overlay on a base model.
type InstanceConfig struct {
	InstanceID      string         `json:"instanceId"`
	BaseModelID     string         `json:"baseModelId"`
	InstanceNumber  int            `json:"instanceNumber"`
	DisplayName     string         `json:"displayName"`
	SystemPrompt    string         `json:"systemPrompt,omitempty"`
	WebSearchEnabled bool          `json:"webSearchEnabled"`
	Port            int            `json:"port"`
	Status          InstanceStatus `json:"status"`
}
