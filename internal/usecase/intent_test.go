package usecase

import (
	"testing"

	"github.com/openmake/ensemble/internal/catalog"
)

func TestClassifyIntentDevTopic(t *testing.T) {
	cat, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	got := ClassifyIntent("파이썬으로 REST API 만들어줘", cat.Topics())

	if got.Category != "프로그래밍/개발" {
		t.Errorf("Category = %q, want 프로그래밍/개발", got.Category)
	}
	if len(got.SuggestedAgents) == 0 || got.SuggestedAgents[0] != "backend-engineer" {
		t.Errorf("SuggestedAgents = %v, want backend-engineer first", got.SuggestedAgents)
	}
	// 파이썬 + rest + api = 3 matches.
	if got.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", got.Confidence)
	}
	if len(got.Matches) != 3 {
		t.Errorf("Matches = %v, want 3 patterns", got.Matches)
	}
}

func TestClassifyIntentNoMatch(t *testing.T) {
	cat, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	got := ClassifyIntent("오늘 날씨 어때", cat.Topics())

	if got.Category != "" {
		t.Errorf("Category = %q, want empty", got.Category)
	}
	if got.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", got.Confidence)
	}
	if len(got.SuggestedAgents) != 0 {
		t.Errorf("SuggestedAgents = %v, want none", got.SuggestedAgents)
	}
}

func TestClassifyIntentSuggestsTopCategoryOnly(t *testing.T) {
	cat, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	// Touches 프로그래밍/개발 twice (코드, 구현) and 데이터/분석 once (데이터).
	got := ClassifyIntent("데이터 처리 코드 구현", cat.Topics())

	if got.Category != "프로그래밍/개발" {
		t.Errorf("Category = %q, want 프로그래밍/개발", got.Category)
	}
	for _, id := range got.SuggestedAgents {
		if id == "data-scientist" || id == "data-engineer" {
			t.Errorf("SuggestedAgents = %v, must list the top category only", got.SuggestedAgents)
		}
	}
	// 3 matches total across both categories.
	if got.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", got.Confidence)
	}
}

func TestClassifyIntentTieBreaksByCatalogOrder(t *testing.T) {
	cat, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	// One pattern each from 프로그래밍/개발 (버그) and 마케팅/홍보 (광고);
	// the earlier catalog entry must win.
	got := ClassifyIntent("광고 페이지 버그", cat.Topics())

	if got.Category != "프로그래밍/개발" {
		t.Errorf("Category = %q, want 프로그래밍/개발 (catalog order tie-break)", got.Category)
	}
}
