package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/openmake/ensemble/internal/catalog"
	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/tracer"
)

// backendUnavailableMessage is returned when every strategy of record has
// failed. Apologetic, diagnosis-hinting, and free of internals.
const backendUnavailableMessage = "죄송합니다. 지금은 답변을 생성할 수 없습니다. 모델 백엔드가 일시적으로 불안정한 것 같습니다. 잠시 후 다시 시도해 주세요."

// DispatcherDeps holds injected dependencies for the dispatcher.
type DispatcherDeps struct {
	Catalog    *catalog.Catalog
	Router     *Router
	Guard      *SecurityGuard
	Models     *ModelTable
	Direct     *DirectStrategy
	Parallel   *A2AStrategy
	Loop       *AgentLoop
	Discussion *DiscussionEngine
	Research   *ResearchEngine
	Monitor    *Monitor
	Sink       domain.DecisionSink // optional
	Logger     *slog.Logger

	Profile         ExecutionProfile
	SemanticRouting bool
	ContextBudget   int
}

// Dispatcher is the engine entry point: it routes a request, picks an
// execution strategy, runs the fallback chain, and records the decision.
type Dispatcher struct {
	deps DispatcherDeps
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.Profile.Name == "" {
		deps.Profile = ProfileByName("standard")
	}
	return &Dispatcher{deps: deps}
}

// Route exposes agent routing on its own, without executing anything.
func (d *Dispatcher) Route(ctx context.Context, message string) domain.AgentSelection {
	return d.deps.Router.Route(ctx, message, d.deps.SemanticRouting)
}

// RunDiscussion runs the multi-expert debate as a top-level mode.
func (d *Dispatcher) RunDiscussion(ctx context.Context, req *domain.Request, progress domain.ProgressFunc) (*domain.DiscussionResult, error) {
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}
	budget := NewContextAssembly(d.deps.ContextBudget, d.deps.Logger)
	budget.FromRequest(req)
	return d.deps.Discussion.Run(ctx, req, budget, progress)
}

// Dispatch runs the full chat pipeline for one request.
func (d *Dispatcher) Dispatch(ctx context.Context, req *domain.Request) (*domain.DispatchResult, error) {
	ctx, span := tracer.StartSpan(ctx, "dispatcher.dispatch")
	defer span.End()

	start := time.Now()
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}
	logger := d.deps.Logger.With("request_id", req.ID)

	rec := domain.DecisionRecord{
		RequestID:    req.ID,
		Mode:         req.Mode,
		QueryLength:  len([]rune(req.Message)),
		HistoryDepth: len(req.History),
		HasDocument:  req.DocumentText != "",
		ImageCount:   len(req.Images),
		CreatedAt:    start,
	}

	// Security pre-check short-circuits with the fixed refusal. Never an
	// error; the violation is logged and recorded.
	if pattern := d.deps.Guard.CheckPrompt(req.Message); pattern != "" {
		rec.SecurityFlag = pattern
		rec.Strategy = "refused"
		rec.Elapsed = time.Since(start)
		d.emit(ctx, rec)
		req.Emit(RefusalMessage)
		return &domain.DispatchResult{
			Text:     RefusalMessage,
			Strategy: "refused",
			Elapsed:  time.Since(start),
		}, nil
	}

	if err := ctx.Err(); err != nil {
		d.deps.Monitor.RecordCancellation()
		return nil, err
	}

	sel := d.deps.Router.Route(ctx, req.Message, d.deps.SemanticRouting)
	span.AddEvent("routed", trace.WithAttributes(
		tracer.StringAttr("agent", sel.AgentID),
		tracer.StringAttr("stage", sel.Stage),
	))
	rec.AgentID = sel.AgentID
	rec.RoutingStage = sel.Stage
	rec.Confidence = sel.Confidence

	if err := ctx.Err(); err != nil {
		d.deps.Monitor.RecordCancellation()
		return nil, err
	}

	budget := NewContextAssembly(d.deps.ContextBudget, logger)
	budget.FromRequest(req)

	// Alternate top-level modes never enter the chat fallback chain. The
	// assembly is handed over unrendered; discussion refreshes the image
	// source after pre-analysis and renders it itself.
	switch req.Mode {
	case domain.ModeDiscussion:
		return d.dispatchDiscussion(ctx, req, budget, rec, start)
	case domain.ModeDeepResearch:
		return d.dispatchResearch(ctx, req, rec, start)
	}

	contextText := budget.Text()
	agent, _ := d.deps.Catalog.Get(sel.AgentID)
	systemPrompt := agentSystemPrompt(agent, sel.Phase)

	qt := ClassifyQueryType(req)
	triple := d.deps.Models.Resolve(qt)
	rec.Model = triple.Primary
	assessment := AssessComplexity(req, sel)

	var result *domain.StrategyResult

	// Trivial chat questions take the cheap single-call path; its failure
	// falls through to the loop like any other recoverable one.
	if qt == QueryChat && assessment.SkipParallel && d.deps.Direct != nil {
		direct, err := d.deps.Direct.Execute(ctx, req, triple.Primary, systemPrompt, contextText)
		if err != nil {
			if domain.IsCancellation(err) {
				d.deps.Monitor.RecordCancellation()
				return nil, err
			}
			logger.Warn("direct strategy failed, falling back", "error", err)
			d.deps.Monitor.RecordFallback()
			rec.FallbackReason = "direct completion failed"
		} else {
			result = direct
		}
	}

	if result == nil && d.parallelEligible(assessment, logger) {
		result = d.tryParallel(ctx, req, triple, systemPrompt, contextText, logger)
		if result == nil || !result.Succeeded {
			if err := ctx.Err(); err != nil {
				d.deps.Monitor.RecordCancellation()
				return nil, err
			}
			d.deps.Monitor.RecordFallback()
			rec.FallbackReason = "parallel generation failed"
			result = nil
		}
	}

	if result == nil {
		loopResult, err := d.deps.Loop.Execute(ctx, req, triple.Primary, systemPrompt, contextText)
		if err != nil {
			if domain.IsCancellation(err) {
				d.deps.Monitor.RecordCancellation()
				return nil, err
			}
			// Terminal but graceful: a readable answer, not a crash.
			logger.Error("agent loop failed", "error", err)
			d.deps.Monitor.RecordFailure()
			rec.Strategy = StrategyLoop
			rec.FallbackReason = string(domain.ErrorCodeOf(err))
			rec.Elapsed = time.Since(start)
			d.emit(ctx, rec)
			req.Emit(backendUnavailableMessage)
			return &domain.DispatchResult{
				Text:     backendUnavailableMessage,
				AgentID:  sel.AgentID,
				Strategy: StrategyLoop,
				Elapsed:  time.Since(start),
			}, nil
		}
		result = loopResult
	}

	// Post-generation policy check: a leaking answer is replaced with the
	// fixed refusal, with the violation recorded like a prompt-side one.
	if marker := d.deps.Guard.CheckResponse(result.Text); marker != "" {
		rec.SecurityFlag = marker
		rec.Strategy = result.Strategy
		rec.Elapsed = time.Since(start)
		d.emit(ctx, rec)
		req.Emit(RefusalMessage)
		return &domain.DispatchResult{
			Text:     RefusalMessage,
			AgentID:  sel.AgentID,
			Strategy: result.Strategy,
			Elapsed:  time.Since(start),
		}, nil
	}

	rec.Strategy = result.Strategy
	rec.Model = result.Model
	rec.PromptTokens = result.Usage.PromptTokens
	rec.OutputTokens = result.Usage.CompletionTokens
	rec.Elapsed = time.Since(start)
	d.emit(ctx, rec)
	d.deps.Monitor.RecordRequest(result.Strategy, sel.AgentID, result.Model,
		result.Usage.PromptTokens, result.Usage.CompletionTokens)

	logger.Info("request dispatched",
		"agent", sel.AgentID,
		"strategy", result.Strategy,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
		"elapsed", time.Since(start),
	)

	tracer.SetOK(span)
	return &domain.DispatchResult{
		Text:     result.Text,
		AgentID:  sel.AgentID,
		Model:    result.Model,
		Strategy: result.Strategy,
		Usage:    result.Usage,
		Elapsed:  time.Since(start),
	}, nil
}

// parallelEligible applies the profile gate and the complexity check.
func (d *Dispatcher) parallelEligible(assessment Assessment, logger *slog.Logger) bool {
	switch d.deps.Profile.Parallel {
	case ParallelNever:
		return false
	case ParallelAlways:
		return true
	}

	if assessment.SkipParallel {
		logger.Debug("parallel generation skipped",
			"score", assessment.Score, "signals", assessment.Signals)
		return false
	}
	return true
}

// tryParallel runs the A2A strategy behind a hard recovery boundary: any
// failure other than cancellation is swallowed and logged so the loop can
// take over.
func (d *Dispatcher) tryParallel(ctx context.Context, req *domain.Request, triple ModelTriple, systemPrompt, contextText string, logger *slog.Logger) (result *domain.StrategyResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("parallel strategy panicked", "panic", r)
			result = nil
		}
	}()

	result, err := d.deps.Parallel.Execute(ctx, req, triple, systemPrompt, contextText)
	if err != nil {
		if domain.IsCancellation(err) {
			return &domain.StrategyResult{Succeeded: false}
		}
		logger.Warn("parallel strategy failed", "error", err)
		return nil
	}
	return result
}

func (d *Dispatcher) dispatchDiscussion(ctx context.Context, req *domain.Request, budget *ContextAssembly, rec domain.DecisionRecord, start time.Time) (*domain.DispatchResult, error) {
	disc, err := d.deps.Discussion.Run(ctx, req, budget, nil)
	if err != nil {
		if domain.IsCancellation(err) {
			d.deps.Monitor.RecordCancellation()
		}
		return nil, err
	}

	rec.Strategy = StrategyDiscussion
	rec.Elapsed = time.Since(start)
	d.emit(ctx, rec)
	d.deps.Monitor.RecordRequest(StrategyDiscussion, rec.AgentID, "", 0, 0)

	req.Emit(disc.Summary)
	return &domain.DispatchResult{
		Text:     disc.Summary,
		AgentID:  rec.AgentID,
		Strategy: StrategyDiscussion,
		Elapsed:  time.Since(start),
	}, nil
}

func (d *Dispatcher) dispatchResearch(ctx context.Context, req *domain.Request, rec domain.DecisionRecord, start time.Time) (*domain.DispatchResult, error) {
	// Research is optional wiring; without a search backend the mode
	// degrades like any other terminal failure.
	if d.deps.Research == nil {
		d.deps.Logger.Warn("deep research requested but no research engine is configured")
		d.deps.Monitor.RecordFailure()
		req.Emit(backendUnavailableMessage)
		return &domain.DispatchResult{
			Text:     backendUnavailableMessage,
			AgentID:  rec.AgentID,
			Strategy: StrategyResearch,
			Elapsed:  time.Since(start),
		}, nil
	}

	result, err := d.deps.Research.Execute(ctx, req, nil)
	if err != nil {
		if domain.IsCancellation(err) {
			d.deps.Monitor.RecordCancellation()
			return nil, err
		}
		d.deps.Monitor.RecordFailure()
		req.Emit(backendUnavailableMessage)
		return &domain.DispatchResult{
			Text:     backendUnavailableMessage,
			AgentID:  rec.AgentID,
			Strategy: StrategyResearch,
			Elapsed:  time.Since(start),
		}, nil
	}
	if !result.Succeeded {
		d.deps.Monitor.RecordFailure()
		req.Emit(backendUnavailableMessage)
		return &domain.DispatchResult{
			Text:     backendUnavailableMessage,
			AgentID:  rec.AgentID,
			Strategy: StrategyResearch,
			Elapsed:  time.Since(start),
		}, nil
	}

	rec.Strategy = StrategyResearch
	rec.Model = result.Model
	rec.PromptTokens = result.Usage.PromptTokens
	rec.OutputTokens = result.Usage.CompletionTokens
	rec.Elapsed = time.Since(start)
	d.emit(ctx, rec)
	d.deps.Monitor.RecordRequest(StrategyResearch, rec.AgentID, result.Model,
		result.Usage.PromptTokens, result.Usage.CompletionTokens)

	return &domain.DispatchResult{
		Text:     result.Text,
		AgentID:  rec.AgentID,
		Model:    result.Model,
		Strategy: StrategyResearch,
		Usage:    result.Usage,
		Elapsed:  time.Since(start),
	}, nil
}

// emit sends the decision record to the sink. Sink failures are logged and
// never fail the request.
func (d *Dispatcher) emit(ctx context.Context, rec domain.DecisionRecord) {
	if d.deps.Sink == nil {
		return
	}
	if err := d.deps.Sink.Record(ctx, rec); err != nil {
		d.deps.Logger.Warn("decision record sink failed", "error", err)
	}
}

// agentSystemPrompt builds the persona prompt for the selected agent and
// work phase.
func agentSystemPrompt(agent domain.AgentDefinition, phase domain.Phase) string {
	var phaseNote string
	switch phase {
	case domain.PhaseBuild:
		phaseNote = "사용자는 지금 구현 단계입니다. 바로 적용할 수 있는 구체적인 결과물을 우선하세요."
	case domain.PhaseOptimization:
		phaseNote = "사용자는 기존 결과물을 개선하려 합니다. 문제 진단과 개선안을 우선하세요."
	default:
		phaseNote = "사용자는 계획 단계입니다. 선택지와 구조적인 방향 제시를 우선하세요."
	}
	return fmt.Sprintf("당신은 %s입니다. %s\n%s", agent.Name, agent.Description, phaseNote)
}
