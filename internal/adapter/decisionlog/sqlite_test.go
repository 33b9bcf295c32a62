package decisionlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/logger"
)

func openTestSink(t *testing.T) *SQLiteSink {
	t.Helper()
	sink, err := Open(filepath.Join(t.TempDir(), "decisions.db"), logger.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestRecordAndRecentRoundTrip(t *testing.T) {
	sink := openTestSink(t)
	ctx := context.Background()

	rec := domain.DecisionRecord{
		RequestID:      "01J0TEST",
		Mode:           domain.ModeChat,
		QueryLength:    42,
		HistoryDepth:   3,
		HasDocument:    true,
		ImageCount:     1,
		AgentID:        "backend-engineer",
		RoutingStage:   "keyword",
		Confidence:     0.8,
		Model:          "model-p",
		Strategy:       "a2a",
		FallbackReason: "",
		PromptTokens:   120,
		OutputTokens:   60,
		Elapsed:        1500 * time.Millisecond,
		CreatedAt:      time.Now(),
	}
	if err := sink.Record(ctx, rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent = %d records, want 1", len(got))
	}

	r := got[0]
	if r.RequestID != rec.RequestID || r.AgentID != rec.AgentID || r.Strategy != rec.Strategy {
		t.Errorf("record = %+v", r)
	}
	if !r.HasDocument || r.ImageCount != 1 {
		t.Errorf("flags = %+v", r)
	}
	if r.Elapsed != 1500*time.Millisecond {
		t.Errorf("Elapsed = %v", r.Elapsed)
	}
	if r.Confidence != 0.8 {
		t.Errorf("Confidence = %v", r.Confidence)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	sink := openTestSink(t)
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		if err := sink.Record(ctx, domain.DecisionRecord{
			RequestID: id,
			Mode:      domain.ModeChat,
			CreatedAt: time.Now(),
		}); err != nil {
			t.Fatalf("Record(%s): %v", id, err)
		}
	}

	got, err := sink.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent = %d records, want 2", len(got))
	}
	if got[0].RequestID != "third" || got[1].RequestID != "second" {
		t.Errorf("order = %q, %q, want newest first", got[0].RequestID, got[1].RequestID)
	}
}

func TestRecentEmpty(t *testing.T) {
	sink := openTestSink(t)

	got, err := sink.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Recent = %v, want none", got)
	}
}
