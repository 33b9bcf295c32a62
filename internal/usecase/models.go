package usecase

import (
	"strings"

	"github.com/openmake/ensemble/internal/domain"
)

// QueryType is the coarse content classification used for model selection.
type QueryType string

const (
	QueryCode     QueryType = "code"
	QueryMath     QueryType = "math"
	QueryCreative QueryType = "creative"
	QueryAnalysis QueryType = "analysis"
	QueryChat     QueryType = "chat"
	QueryVision   QueryType = "vision"
)

// ModelTriple names the models a request runs on: the primary and secondary
// generate in parallel, the synthesizer merges their answers.
type ModelTriple struct {
	Primary     string
	Secondary   string
	Synthesizer string
}

// Bedrock model identifiers used by the default table.
const (
	modelSonnet  = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	modelHaiku   = "anthropic.claude-3-5-haiku-20241022-v1:0"
	modelLlama   = "meta.llama3-1-70b-instruct-v1:0"
	modelMistral = "mistral.mistral-large-2407-v1:0"
	modelNova    = "amazon.nova-pro-v1:0"
	modelNovaLt  = "amazon.nova-lite-v1:0"
)

// ModelTable maps query types to model triples. The built-in defaults are
// the engine contract; deployments override individual entries via config.
type ModelTable struct {
	triples map[QueryType]ModelTriple
}

// DefaultModelTable returns the built-in model assignments.
func DefaultModelTable() *ModelTable {
	return &ModelTable{triples: map[QueryType]ModelTriple{
		QueryCode:     {Primary: modelSonnet, Secondary: modelLlama, Synthesizer: modelSonnet},
		QueryMath:     {Primary: modelSonnet, Secondary: modelMistral, Synthesizer: modelSonnet},
		QueryCreative: {Primary: modelSonnet, Secondary: modelNova, Synthesizer: modelSonnet},
		QueryAnalysis: {Primary: modelSonnet, Secondary: modelNova, Synthesizer: modelSonnet},
		QueryChat:     {Primary: modelHaiku, Secondary: modelNovaLt, Synthesizer: modelHaiku},
		QueryVision:   {Primary: modelSonnet, Secondary: modelNova, Synthesizer: modelSonnet},
	}}
}

// Override replaces the triple for one query type. Empty fields keep the
// existing value.
func (t *ModelTable) Override(qt QueryType, triple ModelTriple) {
	cur := t.triples[qt]
	if triple.Primary != "" {
		cur.Primary = triple.Primary
	}
	if triple.Secondary != "" {
		cur.Secondary = triple.Secondary
	}
	if triple.Synthesizer != "" {
		cur.Synthesizer = triple.Synthesizer
	}
	t.triples[qt] = cur
}

// Resolve returns the triple for a query type, defaulting to chat.
func (t *ModelTable) Resolve(qt QueryType) ModelTriple {
	if triple, ok := t.triples[qt]; ok {
		return triple
	}
	return t.triples[QueryChat]
}

var (
	codeHints = []string{
		"코드", "함수", "버그", "디버깅", "리팩토링", "구현",
		"code", "function", "bug", "debug", "refactor", "implement",
		"```",
	}
	mathHints = []string{
		"계산", "수식", "확률", "통계", "방정식", "미분", "적분",
		"calculate", "equation", "probability", "derivative", "integral",
	}
	creativeHints = []string{
		"써줘", "작성해", "스토리", "시나리오", "카피", "창작",
		"write a story", "poem", "creative", "brainstorm",
	}
	analysisHints = []string{
		"분석", "비교", "평가", "검토", "장단점", "요약",
		"analyze", "compare", "evaluate", "pros and cons", "summarize",
	}
)

// ClassifyQueryType inspects a request and picks the model-selection bucket.
// Image attachments force vision; otherwise the first matching hint set in
// specificity order wins, with chat as the default.
func ClassifyQueryType(req *domain.Request) QueryType {
	if len(req.Images) > 0 {
		return QueryVision
	}
	lower := strings.ToLower(req.Message)

	for _, h := range codeHints {
		if strings.Contains(lower, h) {
			return QueryCode
		}
	}
	for _, h := range mathHints {
		if strings.Contains(lower, h) {
			return QueryMath
		}
	}
	for _, h := range creativeHints {
		if strings.Contains(lower, h) {
			return QueryCreative
		}
	}
	for _, h := range analysisHints {
		if strings.Contains(lower, h) {
			return QueryAnalysis
		}
	}
	return QueryChat
}
