package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/tracer"
)

// StrategyDirect is the single-model, no-tool completion path.
const StrategyDirect = "direct"

// DirectStrategy answers with one completion call. It streams when the
// provider supports it; no tools are exposed.
type DirectStrategy struct {
	llm    domain.LLMProvider
	logger *slog.Logger
}

// NewDirectStrategy creates a direct completion strategy.
func NewDirectStrategy(llm domain.LLMProvider, logger *slog.Logger) *DirectStrategy {
	return &DirectStrategy{llm: llm, logger: logger}
}

// Execute runs one completion on the given model.
func (s *DirectStrategy) Execute(ctx context.Context, req *domain.Request, model, systemPrompt, contextText string) (*domain.StrategyResult, error) {
	ctx, span := tracer.StartSpan(ctx, "strategy.direct")
	defer span.End()

	start := time.Now()
	chatReq := domain.ChatRequest{
		Model:    model,
		Messages: buildMessages(req, systemPrompt, contextText),
	}

	if sp, ok := s.llm.(domain.StreamingLLMProvider); ok && req.OnToken != nil {
		text, usage, err := streamChat(ctx, sp, chatReq, req.Emit)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, domain.NewDomainError("DirectStrategy.Execute", err, model)
		}
		tracer.SetOK(span)
		return &domain.StrategyResult{
			Text:      text,
			Succeeded: true,
			Strategy:  StrategyDirect,
			Model:     model,
			Usage:     usage,
			Elapsed:   time.Since(start),
		}, nil
	}

	resp, err := s.llm.Chat(ctx, chatReq)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError("DirectStrategy.Execute", err, model)
	}
	req.Emit(resp.Message.Content)

	tracer.SetOK(span)
	return &domain.StrategyResult{
		Text:      resp.Message.Content,
		Succeeded: true,
		Strategy:  StrategyDirect,
		Model:     model,
		Usage:     resp.Usage,
		Elapsed:   time.Since(start),
	}, nil
}

// buildMessages assembles the prompt for a single-shot strategy: system
// prompt with the budgeted context appended, prior history, then the user
// message.
func buildMessages(req *domain.Request, systemPrompt, contextText string) []domain.Message {
	system := systemPrompt
	if contextText != "" {
		system = strings.TrimRight(system, "\n") + "\n\n" + contextText
	}

	msgs := make([]domain.Message, 0, len(req.History)+2)
	if system != "" {
		msgs = append(msgs, domain.Message{
			Role:      domain.RoleSystem,
			Content:   system,
			Timestamp: time.Now(),
		})
	}
	msgs = append(msgs, req.History...)
	msgs = append(msgs, domain.Message{
		Role:      domain.RoleUser,
		Content:   req.Message,
		Timestamp: time.Now(),
	})
	return msgs
}

// streamChat consumes a delta channel, forwarding content tokens in order,
// and returns the accumulated text and usage.
func streamChat(ctx context.Context, sp domain.StreamingLLMProvider, chatReq domain.ChatRequest, emit func(string)) (string, domain.Usage, error) {
	deltaCh, err := sp.ChatStream(ctx, chatReq)
	if err != nil {
		return "", domain.Usage{}, err
	}

	var sb strings.Builder
	var usage domain.Usage
	var streamErr error
	for delta := range deltaCh {
		if delta.Err != nil {
			streamErr = delta.Err
			continue
		}
		if delta.Content != "" {
			sb.WriteString(delta.Content)
			if emit != nil {
				emit(delta.Content)
			}
		}
		if delta.Usage != nil {
			usage = *delta.Usage
		}
	}
	if ctx.Err() != nil {
		return "", domain.Usage{}, ctx.Err()
	}
	// A mid-stream failure means the accumulated text is truncated; it is
	// never presented as a completed answer.
	if streamErr != nil {
		return "", domain.Usage{}, streamErr
	}
	return sb.String(), usage, nil
}
