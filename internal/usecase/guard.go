package usecase

import (
	"log/slog"
	"regexp"
	"strings"
)

// RefusalMessage is the fixed answer returned on a policy violation.
// Violations short-circuit the pipeline; they are logged but never thrown.
const RefusalMessage = "요청하신 내용은 안전 정책에 따라 처리할 수 없습니다. 다른 방식으로 질문해 주시면 도와드리겠습니다."

// SecurityGuard checks prompts and responses against the request policy.
// The zero-value patterns cover prompt-injection attempts; deployments can
// extend them via AddPattern before serving traffic.
type SecurityGuard struct {
	patterns []*regexp.Regexp
	logger   *slog.Logger
}

// injectionPatterns are the built-in prompt-injection heuristics.
var injectionPatterns = []string{
	`(?i)ignore (all )?(previous|prior|above) (instructions|prompts)`,
	`(?i)disregard (the )?(system|previous) (prompt|instructions)`,
	`(?i)you are now (dan|developer mode)`,
	`(?i)reveal (your|the) (system prompt|instructions)`,
	`이전\s*(지시|명령|프롬프트)\s*(무시|잊)`,
	`시스템\s*프롬프트.*(알려|보여|출력)`,
}

// NewSecurityGuard compiles the built-in patterns.
func NewSecurityGuard(logger *slog.Logger) *SecurityGuard {
	g := &SecurityGuard{logger: logger}
	for _, p := range injectionPatterns {
		g.patterns = append(g.patterns, regexp.MustCompile(p))
	}
	return g
}

// AddPattern registers an extra pattern. Must be called before serving.
func (g *SecurityGuard) AddPattern(expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return err
	}
	g.patterns = append(g.patterns, re)
	return nil
}

// CheckPrompt returns the matched pattern when the text violates policy,
// or "" when it is clean.
func (g *SecurityGuard) CheckPrompt(text string) string {
	for _, re := range g.patterns {
		if re.MatchString(text) {
			if g.logger != nil {
				g.logger.Warn("prompt policy violation", "pattern", re.String())
			}
			return re.String()
		}
	}
	return ""
}

// CheckResponse scans a generated answer for leaked system-prompt markers.
func (g *SecurityGuard) CheckResponse(text string) string {
	lower := strings.ToLower(text)
	for _, marker := range []string{"system prompt:", "내부 지침:"} {
		if strings.Contains(lower, marker) {
			if g.logger != nil {
				g.logger.Warn("response policy violation", "marker", marker)
			}
			return marker
		}
	}
	return ""
}
