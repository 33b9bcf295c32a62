package domain

// Phase is the inferred stage of work a request belongs to.
type Phase string

const (
	PhasePlanning     Phase = "planning"
	PhaseBuild        Phase = "build"
	PhaseOptimization Phase = "optimization"
)

// AgentDefinition is a specialist persona from the static catalog.
// Definitions are immutable after load and safe for concurrent reads.
type AgentDefinition struct {
	ID          string   `json:"id"          yaml:"id"`
	Name        string   `json:"name"        yaml:"name"`
	Icon        string   `json:"icon"        yaml:"icon"`
	Category    string   `json:"category"    yaml:"category"`
	Description string   `json:"description" yaml:"description"`
	Keywords    []string `json:"keywords"    yaml:"keywords"`
}

// AgentSelection is the result of routing one request.
// It is created once per request and never mutated afterwards.
type AgentSelection struct {
	AgentID    string   `json:"agent_id"`
	Category   string   `json:"category"`
	Phase      Phase    `json:"phase"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
	Matched    []string `json:"matched,omitempty"`
	Stage      string   `json:"stage"` // "semantic", "classifier", "keyword", "default"
}

// TopicCategory is a static catalog entry used by the intent classifier.
type TopicCategory struct {
	Name       string   `json:"name"       yaml:"name"`
	Patterns   []string `json:"patterns"   yaml:"patterns"`
	Agents     []string `json:"agents"     yaml:"agents"`
	Expansions []string `json:"expansions" yaml:"expansions"`
}
