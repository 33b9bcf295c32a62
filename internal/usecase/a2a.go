package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/tracer"
)

// StrategyA2A is the dual-model parallel generation strategy.
const StrategyA2A = "a2a"

// synthesisSystemPrompt instructs the synthesizer model. The rules are part
// of the engine contract: contradictions resolve toward the more detailed
// answer, structured content survives verbatim, and the two source answers
// are never referred to by role.
const synthesisSystemPrompt = `당신은 두 개의 답변을 하나의 완성된 답변으로 통합하는 편집자입니다.

규칙:
1. 두 답변이 상충하면 더 구체적이고 정확한 쪽을 따르세요.
2. 코드 블록, 표, 목록 등 구조화된 내용은 원문 그대로 보존하세요.
3. 최종 답변에서 "모델 A", "모델 B", "첫 번째 답변" 같은 출처 표현을 절대 사용하지 마세요.
4. 중복 내용은 한 번만 포함하고, 서로 보완되는 내용은 모두 포함하세요.
5. 사용자의 원래 질문에 직접 답하는 하나의 자연스러운 글로 작성하세요.`

// branchResult holds one parallel branch's settled outcome.
type branchResult struct {
	model string
	text  string
	usage domain.Usage
	err   error
}

// A2AStrategy runs the primary and secondary models concurrently and merges
// their answers with a synthesizer call. Branch failures are isolated: one
// backend failing never cancels or corrupts the other.
type A2AStrategy struct {
	llm    domain.LLMProvider
	logger *slog.Logger
}

// NewA2AStrategy creates a dual-model parallel strategy.
func NewA2AStrategy(llm domain.LLMProvider, logger *slog.Logger) *A2AStrategy {
	return &A2AStrategy{llm: llm, logger: logger}
}

// Execute fans out to the triple's primary and secondary models, then
// combines. Succeeded=false means both branches failed; the caller falls
// back to another strategy.
func (s *A2AStrategy) Execute(ctx context.Context, req *domain.Request, triple ModelTriple, systemPrompt, contextText string) (*domain.StrategyResult, error) {
	ctx, span := tracer.StartSpan(ctx, "strategy.a2a",
		trace.WithAttributes(
			tracer.StringAttr("model.primary", triple.Primary),
			tracer.StringAttr("model.secondary", triple.Secondary),
		),
	)
	defer span.End()

	start := time.Now()
	messages := buildMessages(req, systemPrompt, contextText)

	// Each branch owns its result slot; WaitGroup instead of errgroup so a
	// failing branch cannot cancel its sibling.
	branches := [2]branchResult{
		{model: triple.Primary},
		{model: triple.Secondary},
	}
	var wg sync.WaitGroup
	for i := range branches {
		wg.Add(1)
		go func(b *branchResult) {
			defer wg.Done()
			resp, err := s.llm.Chat(ctx, domain.ChatRequest{
				Model:    b.model,
				Messages: messages,
			})
			if err != nil {
				b.err = err
				return
			}
			b.text = resp.Message.Content
			b.usage = resp.Usage
		}(&branches[i])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var totalUsage domain.Usage
	var survivors []*branchResult
	for i := range branches {
		b := &branches[i]
		if b.err != nil {
			s.logger.Warn("parallel branch failed", "model", b.model, "error", b.err)
			continue
		}
		totalUsage.Add(b.usage)
		survivors = append(survivors, b)
	}

	switch len(survivors) {
	case 0:
		tracer.RecordError(span, domain.ErrBackendFailure)
		return &domain.StrategyResult{
			Succeeded: false,
			Strategy:  StrategyA2A,
			Usage:     totalUsage,
			Elapsed:   time.Since(start),
		}, nil

	case 1:
		// Single survivor: its answer passes through unmodified under one
		// attribution header.
		b := survivors[0]
		text := attributionHeader(b.model) + b.text
		req.Emit(text)
		tracer.SetOK(span)
		return &domain.StrategyResult{
			Text:      text,
			Succeeded: true,
			Strategy:  StrategyA2A,
			Model:     b.model,
			Usage:     totalUsage,
			Elapsed:   time.Since(start),
		}, nil
	}

	text, synthUsage, err := s.synthesize(ctx, req.Message, triple, survivors[0].text, survivors[1].text)
	totalUsage.Add(synthUsage)
	if err != nil {
		if domain.IsCancellation(err) {
			return nil, err
		}
		// Synthesis failure degrades to the primary branch's answer.
		s.logger.Warn("synthesis failed, returning primary answer",
			"model", triple.Synthesizer, "error", err)
		b := survivors[0]
		degraded := attributionHeader(b.model) + b.text
		req.Emit(degraded)
		tracer.SetOK(span)
		return &domain.StrategyResult{
			Text:      degraded,
			Succeeded: true,
			Strategy:  StrategyA2A,
			Model:     b.model,
			Usage:     totalUsage,
			Elapsed:   time.Since(start),
		}, nil
	}

	final := attributionHeader(triple.Primary, triple.Secondary, triple.Synthesizer) + text
	req.Emit(final)
	tracer.SetOK(span)
	return &domain.StrategyResult{
		Text:      final,
		Succeeded: true,
		Strategy:  StrategyA2A,
		Model:     triple.Synthesizer,
		Usage:     totalUsage,
		Elapsed:   time.Since(start),
	}, nil
}

// synthesize asks the synthesizer model to merge both answers.
func (s *A2AStrategy) synthesize(ctx context.Context, question string, triple ModelTriple, first, second string) (string, domain.Usage, error) {
	prompt := fmt.Sprintf("원래 질문:\n%s\n\n답변 1:\n%s\n\n답변 2:\n%s\n\n위 두 답변을 규칙에 따라 하나의 답변으로 통합하세요.",
		question, first, second)

	resp, err := s.llm.Chat(ctx, domain.ChatRequest{
		Model: triple.Synthesizer,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: synthesisSystemPrompt, Timestamp: time.Now()},
			{Role: domain.RoleUser, Content: prompt, Timestamp: time.Now()},
		},
	})
	if err != nil {
		return "", domain.Usage{}, err
	}
	return resp.Message.Content, resp.Usage, nil
}

// attributionHeader names the models that produced the answer that follows.
func attributionHeader(models ...string) string {
	switch len(models) {
	case 1:
		return fmt.Sprintf("[응답 모델: %s]\n\n", models[0])
	default:
		return fmt.Sprintf("[응답 모델: %s + %s, 통합: %s]\n\n", models[0], models[1], models[2])
	}
}
