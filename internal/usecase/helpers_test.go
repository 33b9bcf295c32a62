package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/openmake/ensemble/internal/domain"
)

// --- shared test doubles ---

// fakeLLM is a scripted provider. respond is called with every request;
// calls are recorded for assertions.
type fakeLLM struct {
	mu      sync.Mutex
	calls   []domain.ChatRequest
	respond func(call int, req domain.ChatRequest) (*domain.ChatResponse, error)
}

func (f *fakeLLM) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.respond(call, req)
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLLM) call(i int) domain.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// textResponse builds a plain assistant reply.
func textResponse(model, text string) *domain.ChatResponse {
	return &domain.ChatResponse{
		Model: model,
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			Content:   text,
			Timestamp: time.Now(),
		},
		Usage: domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

// toolCallResponse builds an assistant reply requesting one tool call.
func toolCallResponse(model, toolName string) *domain.ChatResponse {
	resp := textResponse(model, "")
	resp.Message.ToolCalls = []domain.ToolCall{{
		ID:        "call-1",
		Name:      toolName,
		Arguments: json.RawMessage(`{}`),
	}}
	return resp
}

// fakeTool returns a fixed result.
type fakeTool struct {
	name    string
	content string
	err     error
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "test tool" }
func (t *fakeTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Parameters: json.RawMessage(`{"type":"object"}`)}
}
func (t *fakeTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	if t.err != nil {
		return nil, t.err
	}
	return &domain.ToolResult{Content: t.content}, nil
}

// fakeExecutor serves a fixed tool set.
type fakeExecutor struct {
	tools map[string]domain.Tool
}

func newFakeExecutor(tools ...domain.Tool) *fakeExecutor {
	m := make(map[string]domain.Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	return &fakeExecutor{tools: m}
}

func (e *fakeExecutor) Get(name string) (domain.Tool, error) {
	t, ok := e.tools[name]
	if !ok {
		return nil, domain.ErrToolNotFound
	}
	return t, nil
}

func (e *fakeExecutor) Schemas() []domain.ToolSchema {
	var out []domain.ToolSchema
	for _, t := range e.tools {
		out = append(out, t.Schema())
	}
	return out
}

// allowAll authorizes every tier/tool pair.
type allowAll struct{}

func (allowAll) Allows(_, _ string) bool { return true }

// denyAll refuses every tier/tool pair.
type denyAll struct{}

func (denyAll) Allows(_, _ string) bool { return false }

// fakeVision returns a fixed description for every image. Describe is
// called concurrently by pre-analysis.
type fakeVision struct {
	mu   sync.Mutex
	desc string
	err  error
	seen []string
}

func (v *fakeVision) Describe(_ context.Context, img domain.ImageAttachment) (string, error) {
	v.mu.Lock()
	v.seen = append(v.seen, img.Name)
	v.mu.Unlock()
	if v.err != nil {
		return "", v.err
	}
	return v.desc, nil
}

// fakeSearch returns scripted results.
type fakeSearch struct {
	results []domain.SearchResult
	err     error
	queries []string
}

func (s *fakeSearch) Search(_ context.Context, query string) ([]domain.SearchResult, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}
