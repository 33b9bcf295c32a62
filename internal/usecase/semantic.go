package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openmake/ensemble/internal/domain"
)

// LLMSemanticRouter implements SemanticRouter over an LLM provider.
// It sends a compact catalog description and expects a small JSON object
// naming the chosen agent.
type LLMSemanticRouter struct {
	provider domain.LLMProvider
	model    string
}

// NewLLMSemanticRouter creates a semantic router that calls the given
// provider with the given model id.
func NewLLMSemanticRouter(provider domain.LLMProvider, model string) *LLMSemanticRouter {
	return &LLMSemanticRouter{provider: provider, model: model}
}

const semanticSystemPrompt = `너는 사용자 요청을 전문 에이전트에게 배정하는 라우터다.
아래 에이전트 목록에서 가장 적합한 하나를 고르고, 반드시 다음 JSON만 출력해라:
{"agent": "<id>", "confidence": <0~1 숫자>, "reason": "<한 문장>"}`

// Pick implements SemanticRouter.
func (s *LLMSemanticRouter) Pick(ctx context.Context, message string, agents []domain.AgentDefinition) (*SemanticPick, error) {
	var sb strings.Builder
	for _, a := range agents {
		fmt.Fprintf(&sb, "- %s: %s\n", a.ID, a.Description)
	}

	req := domain.ChatRequest{
		Model: s.model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: semanticSystemPrompt + "\n\n에이전트 목록:\n" + sb.String(), Timestamp: time.Now()},
			{Role: domain.RoleUser, Content: message, Timestamp: time.Now()},
		},
		MaxTokens:   200,
		Temperature: 0,
	}

	resp, err := s.provider.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	pick, err := parseSemanticPick(resp.Message.Content)
	if err != nil {
		return nil, err
	}
	return pick, nil
}

// parseSemanticPick extracts the routing JSON from a model reply, tolerating
// surrounding prose or code fences.
func parseSemanticPick(text string) (*SemanticPick, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in routing reply")
	}

	var raw struct {
		Agent      string  `json:"agent"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parse routing reply: %w", err)
	}
	if raw.Agent == "" {
		return nil, fmt.Errorf("routing reply names no agent")
	}

	return &SemanticPick{
		AgentID:    raw.Agent,
		Confidence: raw.Confidence,
		Reason:     raw.Reason,
	}, nil
}
