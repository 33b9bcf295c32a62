package usecase

import (
	"strings"

	"github.com/openmake/ensemble/internal/domain"
)

// Assessment is the result of the cheap pre-dispatch complexity check.
// It gates the expensive parallel strategy when the execution profile
// requests conditional use.
type Assessment struct {
	// SkipParallel is true when dual-model generation is unlikely to pay off.
	SkipParallel bool
	Score        int
	Signals      []string
}

// parallelWorthScore is the minimum complexity score at which parallel
// generation is attempted.
const parallelWorthScore = 2

// AssessComplexity scores request features. Pure, no I/O; cheap enough to
// run on every request.
func AssessComplexity(req *domain.Request, sel domain.AgentSelection) Assessment {
	var a Assessment

	add := func(points int, signal string) {
		a.Score += points
		a.Signals = append(a.Signals, signal)
	}

	if len([]rune(req.Message)) >= 200 {
		add(2, "long_query")
	}
	if strings.Contains(req.Message, "```") {
		add(1, "code_block")
	}
	if req.DocumentText != "" {
		add(2, "document")
	}
	if len(req.Images) > 0 {
		add(2, "images")
	}
	if len(req.History) >= 6 {
		add(1, "deep_history")
	}
	if sel.Confidence < 0.5 {
		add(1, "ambiguous_routing")
	}
	if strings.Count(req.Message, "?")+strings.Count(req.Message, "？") >= 2 {
		add(1, "multi_question")
	}

	a.SkipParallel = a.Score < parallelWorthScore
	return a
}
