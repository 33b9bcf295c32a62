package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/logger"
)

func newTestLoop(llm *fakeLLM, tools domain.ToolExecutor, auth domain.TierAuthorizer, maxTurns int) *AgentLoop {
	return NewAgentLoop(LoopDeps{
		LLM:        llm,
		Tools:      tools,
		Authorizer: auth,
		Logger:     logger.Discard(),
		MaxTurns:   maxTurns,
	})
}

func TestLoopAnswersWithoutTools(t *testing.T) {
	llm := &fakeLLM{respond: func(_ int, _ domain.ChatRequest) (*domain.ChatResponse, error) {
		return textResponse("m", "바로 답변"), nil
	}}
	loop := newTestLoop(llm, newFakeExecutor(), allowAll{}, 5)

	res, err := loop.Execute(context.Background(), &domain.Request{Message: "안녕"}, "m", "", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Succeeded || res.Text != "바로 답변" {
		t.Errorf("result = %+v", res)
	}
	if res.Turns != 1 {
		t.Errorf("Turns = %d, want 1", res.Turns)
	}
	if llm.callCount() != 1 {
		t.Errorf("calls = %d, want 1", llm.callCount())
	}
}

func TestLoopExecutesToolAndFeedsResult(t *testing.T) {
	llm := &fakeLLM{respond: func(call int, req domain.ChatRequest) (*domain.ChatResponse, error) {
		if call == 0 {
			return toolCallResponse("m", "calc"), nil
		}
		return textResponse("m", "도구 결과 반영 완료"), nil
	}}
	tools := newFakeExecutor(&fakeTool{name: "calc", content: "42"})
	loop := newTestLoop(llm, tools, allowAll{}, 5)

	res, err := loop.Execute(context.Background(), &domain.Request{Message: "계산"}, "m", "", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Turns != 2 {
		t.Errorf("Turns = %d, want 2", res.Turns)
	}

	// The second model call must see the tool result in history.
	second := llm.call(1)
	var found bool
	for _, m := range second.Messages {
		if m.Role == domain.RoleTool && m.Content == "42" {
			found = true
		}
	}
	if !found {
		t.Errorf("tool result missing from second call history: %+v", second.Messages)
	}
}

func TestLoopExhaustionSoftTerminates(t *testing.T) {
	// Every turn produces text plus a tool call, so the budget runs out with
	// an answer in hand.
	llm := &fakeLLM{respond: func(_ int, _ domain.ChatRequest) (*domain.ChatResponse, error) {
		resp := toolCallResponse("m", "calc")
		resp.Message.Content = "중간 생각"
		return resp, nil
	}}
	tools := newFakeExecutor(&fakeTool{name: "calc", content: "42"})
	loop := newTestLoop(llm, tools, allowAll{}, 3)

	res, err := loop.Execute(context.Background(), &domain.Request{Message: "계산"}, "m", "", "")
	if err != nil {
		t.Fatalf("Execute: %v, want soft terminate", err)
	}
	if !res.Succeeded {
		t.Error("Succeeded = false, want true on soft terminate")
	}
	if res.Text != "중간 생각" {
		t.Errorf("Text = %q, want last model text", res.Text)
	}
	if res.Turns != 3 {
		t.Errorf("Turns = %d, want 3", res.Turns)
	}
}

func TestLoopExhaustionWithoutTextFails(t *testing.T) {
	llm := &fakeLLM{respond: func(_ int, _ domain.ChatRequest) (*domain.ChatResponse, error) {
		return toolCallResponse("m", "calc"), nil
	}}
	tools := newFakeExecutor(&fakeTool{name: "calc", content: "42"})
	loop := newTestLoop(llm, tools, allowAll{}, 2)

	_, err := loop.Execute(context.Background(), &domain.Request{Message: "계산"}, "m", "", "")
	if !errors.Is(err, domain.ErrMaxTurns) {
		t.Errorf("err = %v, want ErrMaxTurns", err)
	}
}

func TestLoopTierDenialBecomesToolMessage(t *testing.T) {
	llm := &fakeLLM{respond: func(call int, req domain.ChatRequest) (*domain.ChatResponse, error) {
		if call == 0 {
			return toolCallResponse("m", "calc"), nil
		}
		return textResponse("m", "도구 없이 답변"), nil
	}}
	tools := newFakeExecutor(&fakeTool{name: "calc", content: "42"})
	loop := newTestLoop(llm, tools, denyAll{}, 5)

	res, err := loop.Execute(context.Background(), &domain.Request{Message: "계산", Tier: "free"}, "m", "", "")
	if err != nil {
		t.Fatalf("Execute: %v, denial must not abort the loop", err)
	}
	if !res.Succeeded {
		t.Error("Succeeded = false")
	}

	second := llm.call(1)
	var denial string
	for _, m := range second.Messages {
		if m.Role == domain.RoleTool {
			denial = m.Content
		}
	}
	if !strings.Contains(denial, "free") || !strings.Contains(denial, "calc") {
		t.Errorf("denial message = %q, want tool and tier named", denial)
	}
}

func TestLoopToolErrorBecomesToolMessage(t *testing.T) {
	llm := &fakeLLM{respond: func(call int, req domain.ChatRequest) (*domain.ChatResponse, error) {
		if call == 0 {
			return toolCallResponse("m", "calc"), nil
		}
		return textResponse("m", "실패를 감안한 답변"), nil
	}}
	tools := newFakeExecutor(&fakeTool{name: "calc", err: errors.New("division by zero")})
	loop := newTestLoop(llm, tools, allowAll{}, 5)

	res, err := loop.Execute(context.Background(), &domain.Request{Message: "계산"}, "m", "", "")
	if err != nil {
		t.Fatalf("Execute: %v, tool failure must not abort the loop", err)
	}
	if !res.Succeeded {
		t.Error("Succeeded = false")
	}

	second := llm.call(1)
	var content string
	for _, m := range second.Messages {
		if m.Role == domain.RoleTool {
			content = m.Content
		}
	}
	if !strings.HasPrefix(content, "Error: ") {
		t.Errorf("tool message = %q, want Error: prefix", content)
	}
}

func TestLoopUnknownToolBecomesToolMessage(t *testing.T) {
	llm := &fakeLLM{respond: func(call int, req domain.ChatRequest) (*domain.ChatResponse, error) {
		if call == 0 {
			return toolCallResponse("m", "no-such-tool"), nil
		}
		return textResponse("m", "답변"), nil
	}}
	loop := newTestLoop(llm, newFakeExecutor(), allowAll{}, 5)

	res, err := loop.Execute(context.Background(), &domain.Request{Message: "x"}, "m", "", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Succeeded {
		t.Error("Succeeded = false")
	}
}

func TestLoopCancellationSurfaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &fakeLLM{respond: func(_ int, _ domain.ChatRequest) (*domain.ChatResponse, error) {
		return textResponse("m", "x"), nil
	}}
	loop := newTestLoop(llm, newFakeExecutor(), allowAll{}, 5)

	_, err := loop.Execute(ctx, &domain.Request{Message: "x"}, "m", "", "")
	if !domain.IsCancellation(err) {
		t.Errorf("err = %v, want cancellation", err)
	}
}

func TestLoopRetriesTransientError(t *testing.T) {
	llm := &fakeLLM{respond: func(call int, _ domain.ChatRequest) (*domain.ChatResponse, error) {
		if call == 0 {
			return nil, errors.New("API error 429: slow down")
		}
		return textResponse("m", "재시도 성공"), nil
	}}
	loop := NewAgentLoop(LoopDeps{
		LLM:        llm,
		Tools:      newFakeExecutor(),
		Authorizer: allowAll{},
		Classifier: NewErrorClassifier(),
		Logger:     logger.Discard(),
		MaxTurns:   5,
	})

	res, err := loop.Execute(context.Background(), &domain.Request{Message: "x"}, "m", "", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Text != "재시도 성공" {
		t.Errorf("Text = %q", res.Text)
	}
	if llm.callCount() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", llm.callCount())
	}
}

func TestLoopPermanentErrorFailsWithoutRetry(t *testing.T) {
	llm := &fakeLLM{respond: func(_ int, _ domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, errors.New("API error 401: bad key")
	}}
	loop := NewAgentLoop(LoopDeps{
		LLM:        llm,
		Tools:      newFakeExecutor(),
		Authorizer: allowAll{},
		Classifier: NewErrorClassifier(),
		Logger:     logger.Discard(),
		MaxTurns:   5,
	})

	_, err := loop.Execute(context.Background(), &domain.Request{Message: "x"}, "m", "", "")
	if err == nil {
		t.Fatal("Execute succeeded, want error")
	}
	if llm.callCount() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent error)", llm.callCount())
	}
}
