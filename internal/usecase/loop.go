package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/tracer"
)

// StrategyLoop is the tool-calling agent loop strategy.
const StrategyLoop = "agent_loop"

// Recovery loop constants.
const (
	maxLLMRetries  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

// LoopDeps holds injected dependencies for the agent loop.
type LoopDeps struct {
	LLM        domain.LLMProvider
	Tools      domain.ToolExecutor
	Authorizer domain.TierAuthorizer
	Classifier *ErrorClassifier // optional, nil = no retry
	Logger     *slog.Logger
	MaxTurns   int
}

// AgentLoop runs the bounded think-act cycle: call the model with the
// caller's tool set, execute requested tools, feed results back, repeat.
type AgentLoop struct {
	deps LoopDeps
}

// NewAgentLoop creates an agent loop with the given dependencies.
func NewAgentLoop(deps LoopDeps) *AgentLoop {
	if deps.MaxTurns <= 0 {
		deps.MaxTurns = 5
	}
	return &AgentLoop{deps: deps}
}

// Execute runs the loop for one request. Turn exhaustion is a soft
// terminate: the last model message becomes the answer. Only cancellation
// and a turn-one total failure surface as errors.
func (l *AgentLoop) Execute(ctx context.Context, req *domain.Request, model, systemPrompt, contextText string) (*domain.StrategyResult, error) {
	ctx, span := tracer.StartSpan(ctx, "strategy.agent_loop",
		trace.WithAttributes(tracer.StringAttr("model", model)),
	)
	defer span.End()

	start := time.Now()
	messages := buildMessages(req, systemPrompt, contextText)

	var schemas []domain.ToolSchema
	if l.deps.Tools != nil {
		schemas = l.deps.Tools.Schemas()
	}

	var totalUsage domain.Usage
	var lastText string
	turns := 0

	for i := 0; i < l.deps.MaxTurns; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		span.AddEvent("loop.turn", trace.WithAttributes(tracer.IntAttr("turn", i)))
		turns = i + 1

		msg, usage, err := l.callWithRetry(ctx, domain.ChatRequest{
			Model:    model,
			Messages: messages,
			Tools:    schemas,
		})
		if err != nil {
			if domain.IsCancellation(err) {
				return nil, err
			}
			tracer.RecordError(span, err)
			// A model message from an earlier turn still makes a usable
			// answer; with nothing accumulated the loop has failed.
			if lastText != "" {
				l.deps.Logger.Warn("loop turn failed, returning prior answer",
					"turn", i, "error", err)
				break
			}
			return nil, domain.NewDomainError("AgentLoop.Execute", err, model)
		}
		totalUsage.Add(usage)
		messages = append(messages, msg)
		if msg.Content != "" {
			lastText = msg.Content
		}

		l.deps.Logger.Debug("loop turn",
			"turn", i,
			"tool_calls", len(msg.ToolCalls),
			"tokens", usage.TotalTokens,
		)

		if len(msg.ToolCalls) == 0 {
			req.Emit(msg.Content)
			tracer.SetOK(span)
			return &domain.StrategyResult{
				Text:      msg.Content,
				Succeeded: true,
				Strategy:  StrategyLoop,
				Model:     model,
				Usage:     totalUsage,
				Turns:     turns,
				Elapsed:   time.Since(start),
			}, nil
		}

		// Tool calls run in parallel; results are indexed so history keeps
		// the model's original call order.
		toolMsgs := make([]domain.Message, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for j, call := range msg.ToolCalls {
			wg.Add(1)
			go func(idx int, c domain.ToolCall) {
				defer wg.Done()
				toolMsgs[idx] = l.executeTool(ctx, req.Tier, c)
			}(j, call)
		}
		wg.Wait()
		messages = append(messages, toolMsgs...)
	}

	// Turn budget exhausted: best effort, not a hard failure.
	if lastText != "" {
		l.deps.Logger.Info("loop turns exhausted, returning last answer",
			"turns", turns)
		req.Emit(lastText)
		tracer.SetOK(span)
		return &domain.StrategyResult{
			Text:      lastText,
			Succeeded: true,
			Strategy:  StrategyLoop,
			Model:     model,
			Usage:     totalUsage,
			Turns:     turns,
			Elapsed:   time.Since(start),
		}, nil
	}

	tracer.RecordError(span, domain.ErrMaxTurns)
	return nil, domain.NewDomainError("AgentLoop.Execute", domain.ErrMaxTurns, model)
}

// executeTool runs one tool call and returns the result as a tool message.
// Tier denials and execution failures both come back as message content so
// the model can react; they never abort the loop.
func (l *AgentLoop) executeTool(ctx context.Context, tier string, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "loop.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	echo := []domain.ToolCall{{ID: call.ID, Name: call.Name}}

	if l.deps.Authorizer != nil && !l.deps.Authorizer.Allows(tier, call.Name) {
		l.deps.Logger.Info("tool denied by tier", "tool", call.Name, "tier", tier)
		return domain.Message{
			Role:      domain.RoleTool,
			Name:      call.Name,
			Content:   fmt.Sprintf("'%s' 도구는 %s 등급에서 사용할 수 없습니다. 도구 없이 답변해 주세요.", call.Name, tier),
			ToolCalls: echo,
			Timestamp: time.Now(),
		}
	}

	tool, err := l.deps.Tools.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.Message{
			Role:      domain.RoleTool,
			Name:      call.Name,
			Content:   "Error: " + err.Error(),
			ToolCalls: echo,
			Timestamp: time.Now(),
		}
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.Message{
			Role:      domain.RoleTool,
			Name:      call.Name,
			Content:   "Error: " + err.Error(),
			ToolCalls: echo,
			Timestamp: time.Now(),
		}
	}

	tracer.SetOK(span)
	return domain.Message{
		Role:      domain.RoleTool,
		Name:      call.Name,
		Content:   result.Content,
		ToolCalls: echo,
		Timestamp: time.Now(),
	}
}

// callWithRetry performs the model call, retrying transient failures with
// exponential backoff when a classifier is configured.
func (l *AgentLoop) callWithRetry(ctx context.Context, chatReq domain.ChatRequest) (domain.Message, domain.Usage, error) {
	maxAttempts := 1
	if l.deps.Classifier != nil {
		maxAttempts = maxLLMRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := l.deps.LLM.Chat(ctx, chatReq)
		if err == nil {
			return resp.Message, resp.Usage, nil
		}
		lastErr = err

		if domain.IsCancellation(err) || l.deps.Classifier == nil {
			return domain.Message{}, domain.Usage{}, err
		}
		classified := l.deps.Classifier.Classify(err)
		if classified.Category != ErrorCategoryRetryable {
			return domain.Message{}, domain.Usage{}, err
		}

		if attempt < maxAttempts-1 {
			delay := retryBackoff(attempt)
			l.deps.Logger.Info("retrying model call after error",
				"attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return domain.Message{}, domain.Usage{}, ctx.Err()
			}
		}
	}
	return domain.Message{}, domain.Usage{}, lastErr
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add 0-25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}
