package usecase

// ParallelMode controls when the dual-model parallel strategy runs.
type ParallelMode int

const (
	// ParallelNever skips dual-model generation entirely.
	ParallelNever ParallelMode = iota
	// ParallelConditional gates dual-model generation on the complexity check.
	ParallelConditional
	// ParallelAlways attempts dual-model generation on every request.
	ParallelAlways
)

// ExecutionProfile is a caller-chosen policy bundle controlling which
// strategies are eligible and their limits.
type ExecutionProfile struct {
	Name              string
	Parallel          ParallelMode
	MaxTurns          int
	DiscussionRounds  int
	DiscussionExperts int
}

// Built-in profiles. "standard" is the default.
var profiles = map[string]ExecutionProfile{
	"fast": {
		Name:              "fast",
		Parallel:          ParallelNever,
		MaxTurns:          3,
		DiscussionRounds:  1,
		DiscussionExperts: 3,
	},
	"standard": {
		Name:              "standard",
		Parallel:          ParallelConditional,
		MaxTurns:          5,
		DiscussionRounds:  2,
		DiscussionExperts: 4,
	},
	"quality": {
		Name:              "quality",
		Parallel:          ParallelAlways,
		MaxTurns:          8,
		DiscussionRounds:  3,
		DiscussionExperts: 5,
	},
}

// ProfileByName returns the named profile, or "standard" for unknown names.
func ProfileByName(name string) ExecutionProfile {
	if p, ok := profiles[name]; ok {
		return p
	}
	return profiles["standard"]
}
