package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/openmake/ensemble/internal/catalog"
	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/tracer"
)

// Keyword scoring weights. The short-keyword rule exists because 2-letter
// keywords ("go", "ai", "db") hit far too many unrelated substrings.
const (
	classifierSeedScore = 5
	shortKeywordScore   = 3
	substringScore      = 2
	wholeWordBonus      = 1
	nameMatchScore      = 3
	idMatchScore        = 2
)

// SemanticPick is the parsed result of a model-backed routing call.
type SemanticPick struct {
	AgentID    string
	Confidence float64
	Reason     string
}

// SemanticRouter delegates agent selection to a model-inference backend.
// Implementations must honor ctx cancellation and deadlines.
type SemanticRouter interface {
	Pick(ctx context.Context, message string, agents []domain.AgentDefinition) (*SemanticPick, error)
}

// Router maps free text to one specialist agent. Stage 1 is an optional
// semantic call to a model backend; stages 2-3 are local fallbacks that
// never touch the network, so routing works with every backend down.
type Router struct {
	catalog  *catalog.Catalog
	semantic SemanticRouter // nil disables the semantic stage
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRouter creates a Router. semantic may be nil.
func NewRouter(cat *catalog.Catalog, semantic SemanticRouter, timeout time.Duration, logger *slog.Logger) *Router {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Router{catalog: cat, semantic: semantic, timeout: timeout, logger: logger}
}

// Route resolves the primary agent for message. The returned selection
// always names a known agent; a semantic-stage failure degrades to the
// local fallback, never to an error.
func (r *Router) Route(ctx context.Context, message string, useSemantic bool) domain.AgentSelection {
	ctx, span := tracer.StartSpan(ctx, "router.route")
	defer span.End()

	phase := DetectPhase(message)

	if useSemantic && r.semantic != nil {
		if sel, ok := r.routeSemantic(ctx, message); ok {
			sel.Phase = phase
			span.AddEvent("semantic match")
			tracer.SetOK(span)
			return sel
		}
	}

	sel := r.routeLocal(message)
	sel.Phase = phase
	tracer.SetOK(span)
	return sel
}

// routeSemantic runs the model-backed stage. It reports ok=false on
// timeout, malformed output, unknown agent, or low confidence.
func (r *Router) routeSemantic(ctx context.Context, message string) (domain.AgentSelection, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pick, err := r.semantic.Pick(ctx, sanitizeForRouting(message), r.catalog.Agents())
	if err != nil {
		r.logger.Debug("semantic routing unavailable, falling back", "error", err)
		return domain.AgentSelection{}, false
	}

	agent, known := r.catalog.Get(pick.AgentID)
	if !known || pick.Confidence <= 0.3 {
		r.logger.Debug("semantic routing result rejected",
			"agent_id", pick.AgentID, "known", known, "confidence", pick.Confidence)
		return domain.AgentSelection{}, false
	}

	return domain.AgentSelection{
		AgentID:    agent.ID,
		Category:   agent.Category,
		Reason:     pick.Reason,
		Confidence: pick.Confidence,
		Stage:      "semantic",
	}, true
}

// routeLocal is the deterministic fallback chain: intent classification
// seeds a candidate, then keyword-precision scoring may replace it.
func (r *Router) routeLocal(message string) domain.AgentSelection {
	lower := strings.ToLower(message)
	tokens := tokenize(lower)

	intent := ClassifyIntent(message, r.catalog.Topics())

	var (
		selectedID    string
		selectedScore int
		confidence    float64
		reason        string
		matched       []string
		stage         string
	)

	if len(intent.SuggestedAgents) > 0 {
		selectedID = intent.SuggestedAgents[0]
		selectedScore = classifierSeedScore
		confidence = maxFloat(0.5, intent.Confidence)
		reason = fmt.Sprintf("분류된 주제: %s", intent.Category)
		matched = intent.Matches
		stage = "classifier"
	}

	bestID, bestScore, bestMatched := r.scanKeywords(lower, tokens)
	if bestScore > selectedScore {
		selectedID = bestID
		selectedScore = bestScore
		confidence = minFloat(float64(bestScore)/10.0, 1.0)
		reason = fmt.Sprintf("키워드 매칭 점수 %d", bestScore)
		matched = bestMatched
		stage = "keyword"
	}

	if selectedID == "" {
		def := r.catalog.Default()
		return domain.AgentSelection{
			AgentID:    def.ID,
			Category:   def.Category,
			Reason:     "매칭되는 전문 에이전트 없음",
			Confidence: 0.3,
			Stage:      "default",
		}
	}

	agent, _ := r.catalog.Get(selectedID)
	return domain.AgentSelection{
		AgentID:    agent.ID,
		Category:   agent.Category,
		Reason:     reason,
		Confidence: confidence,
		Matched:    matched,
		Stage:      stage,
	}
}

// scanKeywords scores every agent's keyword list against the message and
// returns the highest scorer. Keywords of 1-2 runes must match a whole
// token; longer keywords match as substrings with a whole-word bonus.
func (r *Router) scanKeywords(lower string, tokens map[string]bool) (string, int, []string) {
	var (
		bestID      string
		bestScore   int
		bestMatched []string
	)

	for _, agent := range r.catalog.Agents() {
		score := 0
		var hits []string

		for _, kw := range agent.Keywords {
			k := strings.ToLower(kw)
			if len([]rune(k)) <= 2 {
				if tokens[k] {
					score += shortKeywordScore
					hits = append(hits, k)
				}
				continue
			}
			if strings.Contains(lower, k) {
				score += substringScore
				if tokens[k] {
					score += wholeWordBonus
				}
				hits = append(hits, k)
			}
		}

		if name := strings.ToLower(agent.Name); name != "" && strings.Contains(lower, name) {
			score += nameMatchScore
			hits = append(hits, name)
		}
		if idWords := strings.ReplaceAll(agent.ID, "-", " "); strings.Contains(lower, idWords) {
			score += idMatchScore
			hits = append(hits, idWords)
		}

		if score > bestScore {
			bestID = agent.ID
			bestScore = score
			bestMatched = hits
		}
	}

	return bestID, bestScore, bestMatched
}

// Phase keyword sets, checked in fixed priority order. A query that names
// none of them is treated as planning.
var (
	planningKeywords = []string{
		"기획", "계획", "설계", "아키텍처", "전략", "어떻게 시작",
		"plan", "design", "architecture", "roadmap",
	}
	buildKeywords = []string{
		"만들", "구현", "개발해", "작성해", "생성", "코드 짜",
		"build", "implement", "create", "write code",
	}
	optimizationKeywords = []string{
		"최적화", "개선", "리팩토링", "성능", "튜닝", "빠르게",
		"optimize", "improve", "refactor", "performance",
	}
)

// DetectPhase classifies the work stage of a request. Independent of agent
// routing; priority order is planning, build, optimization.
func DetectPhase(message string) domain.Phase {
	lower := strings.ToLower(message)
	for _, kw := range planningKeywords {
		if strings.Contains(lower, kw) {
			return domain.PhasePlanning
		}
	}
	for _, kw := range buildKeywords {
		if strings.Contains(lower, kw) {
			return domain.PhaseBuild
		}
	}
	for _, kw := range optimizationKeywords {
		if strings.Contains(lower, kw) {
			return domain.PhaseOptimization
		}
	}
	return domain.PhasePlanning
}

// maxRoutingChars caps the text sent to the semantic routing backend.
const maxRoutingChars = 500

// sanitizeForRouting strips control characters and caps length before the
// message is embedded in a routing prompt.
func sanitizeForRouting(message string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, message)
	runes := []rune(cleaned)
	if len(runes) > maxRoutingChars {
		return string(runes[:maxRoutingChars])
	}
	return cleaned
}

// tokenize splits lowercased text into a token set on any rune that is
// neither a letter nor a digit.
func tokenize(lower string) map[string]bool {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
