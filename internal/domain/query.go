package domain

// QueryMode is the closed set of orchestration modes.
type QueryMode string

const (
	ModeSimple    QueryMode = "simple"
	ModeTwoStage  QueryMode = "two-stage"
	ModeCouncil   QueryMode = "council"
	ModeBenchmark QueryMode = "benchmark"
)

// ModeratorOptions configures the Dialogue Engine's optional live
// moderator (spec.md §4.6).
type ModeratorOptions struct {
	Enabled         bool   `json:"enabled"`
	Frequency       int    `json:"frequency"` // every N turns
	MaxInterjections int   `json:"maxInterjections"`
	ModelID         string `json:"modelId,omitempty"`
}

// CouncilOptions configures council-mode requests (consensus or debate).
type CouncilOptions struct {
	Adversarial        bool              `json:"adversarial"`
	Participants       []string          `json:"participants,omitempty"`
	ProModel           string            `json:"proModel,omitempty"`
	ConModel           string            `json:"conModel,omitempty"`
	Personas           map[string]string `json:"personas,omitempty"`
	PersonaProfile     string            `json:"personaProfile,omitempty"`
	MaxTurns           int               `json:"maxTurns"`
	DynamicTermination bool              `json:"dynamicTermination"`
	Moderator          ModeratorOptions  `json:"moderator"`
	GlobalPreset       string            `json:"globalPreset,omitempty"`
	RolePresets        map[string]string `json:"rolePresets,omitempty"`
	PostDebateAnalysis bool              `json:"postDebateAnalysis,omitempty"`
}

// BenchmarkOptions configures benchmark-mode requests.
type BenchmarkOptions struct {
	Serial    bool `json:"serial"`
	BatchSize int  `json:"batchSize"`
}

// QueryRequest is the Orchestrator's public input (spec.md §4.7).
type QueryRequest struct {
	Query          string            `json:"query"`
	Mode           QueryMode         `json:"mode"`
	UseContext     bool              `json:"useContext"`
	UseWebSearch   bool              `json:"useWebSearch"`
	MaxTokens      int               `json:"maxTokens"`
	Temperature    float64           `json:"temperature"`
	InstanceID     string            `json:"instanceId,omitempty"`
	SystemPrompt   string            `json:"systemPrompt,omitempty"`
	Council        CouncilOptions    `json:"council,omitempty"`
	Benchmark      BenchmarkOptions  `json:"benchmark,omitempty"`
}

// StageInfo records one orchestrator stage's model/tier/timing.
type StageInfo struct {
	ModelID  string  `json:"modelId"`
	Tier     Tier    `json:"tier"`
	Response string  `json:"response"`
	Tokens   int     `json:"tokens"`
	Millis   float64 `json:"millis"`
}

// BenchmarkResult records one model's outcome in benchmark mode.
type BenchmarkResult struct {
	ModelID       string  `json:"modelId"`
	Success       bool    `json:"success"`
	Response      string  `json:"response,omitempty"`
	Error         string  `json:"error,omitempty"`
	Millis        float64 `json:"millis"`
	TokensOut     int     `json:"tokensOut"`
	TokensIn      int     `json:"tokensIn"`
	EstVRAMBytes  int64   `json:"estVramBytes"`
}

// QueryResponse is the Orchestrator's public output.
type QueryResponse struct {
	QueryID   string                 `json:"queryId"`
	Mode      QueryMode              `json:"mode"`
	Response  string                 `json:"response"`
	Metadata  map[string]interface{} `json:"metadata"`
	Millis    float64                `json:"millis"`
}
