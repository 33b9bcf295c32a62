package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openmake/ensemble/internal/catalog"
	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/logger"
)

func newTestRouter(t *testing.T, semantic SemanticRouter) *Router {
	t.Helper()
	cat, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewRouter(cat, semantic, time.Second, logger.Discard())
}

// fakeSemantic is a scripted semantic routing backend.
type fakeSemantic struct {
	pick *SemanticPick
	err  error
}

func (f *fakeSemantic) Pick(_ context.Context, _ string, _ []domain.AgentDefinition) (*SemanticPick, error) {
	return f.pick, f.err
}

func TestRouteNoMatchReturnsDefault(t *testing.T) {
	r := newTestRouter(t, nil)

	sel := r.Route(context.Background(), "오늘 날씨 어때", false)

	if sel.AgentID != "general" {
		t.Errorf("AgentID = %q, want general", sel.AgentID)
	}
	if sel.Confidence != 0.3 {
		t.Errorf("Confidence = %v, want exactly 0.3", sel.Confidence)
	}
	if sel.Stage != "default" {
		t.Errorf("Stage = %q, want default", sel.Stage)
	}
}

func TestRouteEndToEndKorean(t *testing.T) {
	r := newTestRouter(t, nil)

	sel := r.Route(context.Background(), "파이썬으로 REST API 만들어줘", false)

	if sel.AgentID != "backend-engineer" {
		t.Errorf("AgentID = %q, want backend-engineer", sel.AgentID)
	}
	if sel.Phase != domain.PhaseBuild {
		t.Errorf("Phase = %q, want build", sel.Phase)
	}
	if sel.Confidence < 0.5 {
		t.Errorf("Confidence = %v, want >= 0.5", sel.Confidence)
	}
}

func TestRouteShortKeywordNeedsWholeToken(t *testing.T) {
	r := newTestRouter(t, nil)

	// "db" occurs only inside "mydb"; a 2-rune keyword must not score on
	// a substring.
	sub := r.Route(context.Background(), "mydb 설정", false)
	if sub.AgentID != "general" || sub.Stage != "default" {
		t.Errorf("substring route = %q/%q, want general/default", sub.AgentID, sub.Stage)
	}

	// As its own token it scores.
	tok := r.Route(context.Background(), "db 설정", false)
	if tok.AgentID != "backend-engineer" {
		t.Errorf("token route = %q, want backend-engineer", tok.AgentID)
	}
	if tok.Stage != "keyword" {
		t.Errorf("token stage = %q, want keyword", tok.Stage)
	}
}

func TestRouteClassifierSeedWithoutKeywords(t *testing.T) {
	r := newTestRouter(t, nil)

	// "머신러닝" is a topic pattern but not strong enough in agent keywords
	// to beat the classifier seed.
	sel := r.Route(context.Background(), "머신러닝이 뭐야", false)

	if sel.AgentID != "data-scientist" {
		t.Errorf("AgentID = %q, want data-scientist", sel.AgentID)
	}
	if sel.Confidence < 0.5 {
		t.Errorf("Confidence = %v, want >= 0.5", sel.Confidence)
	}
}

func TestRouteSemanticAccepted(t *testing.T) {
	r := newTestRouter(t, &fakeSemantic{
		pick: &SemanticPick{AgentID: "ux-designer", Confidence: 0.9, Reason: "design request"},
	})

	sel := r.Route(context.Background(), "버튼 배치 어떻게 할까", true)

	if sel.AgentID != "ux-designer" {
		t.Errorf("AgentID = %q, want ux-designer", sel.AgentID)
	}
	if sel.Stage != "semantic" {
		t.Errorf("Stage = %q, want semantic", sel.Stage)
	}
}

func TestRouteSemanticFailureDegrades(t *testing.T) {
	tests := []struct {
		name     string
		semantic *fakeSemantic
	}{
		{"backend error", &fakeSemantic{err: errors.New("boom")}},
		{"unknown agent", &fakeSemantic{pick: &SemanticPick{AgentID: "nope", Confidence: 0.9}}},
		{"low confidence", &fakeSemantic{pick: &SemanticPick{AgentID: "ux-designer", Confidence: 0.2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, tt.semantic)

			sel := r.Route(context.Background(), "파이썬으로 REST API 만들어줘", true)

			if sel.AgentID != "backend-engineer" {
				t.Errorf("AgentID = %q, want local fallback backend-engineer", sel.AgentID)
			}
			if sel.Stage == "semantic" {
				t.Errorf("Stage = semantic, want a local stage")
			}
		})
	}
}

func TestDetectPhase(t *testing.T) {
	tests := []struct {
		message string
		want    domain.Phase
	}{
		{"서비스 아키텍처 어떻게 잡을까", domain.PhasePlanning},
		{"로그인 기능 만들어줘", domain.PhaseBuild},
		{"쿼리 성능 튜닝 방법", domain.PhaseOptimization},
		{"그냥 궁금한 게 있어", domain.PhasePlanning},
		// Planning keywords take priority over build keywords.
		{"구현 전에 설계부터 잡자", domain.PhasePlanning},
	}

	for _, tt := range tests {
		if got := DetectPhase(tt.message); got != tt.want {
			t.Errorf("DetectPhase(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestSanitizeForRouting(t *testing.T) {
	in := "hello\x00world\x1b[31m"
	got := sanitizeForRouting(in)
	if got != "helloworld[31m" {
		t.Errorf("sanitizeForRouting = %q", got)
	}

	long := make([]rune, 600)
	for i := range long {
		long[i] = '가'
	}
	if n := len([]rune(sanitizeForRouting(string(long)))); n != maxRoutingChars {
		t.Errorf("sanitized length = %d, want %d", n, maxRoutingChars)
	}
}
