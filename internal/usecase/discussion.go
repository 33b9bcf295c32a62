package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openmake/ensemble/internal/catalog"
	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/tracer"
)

// StrategyDiscussion is the multi-expert debate strategy.
const StrategyDiscussion = "discussion"

// DiscussionUnavailableMessage is the fixed answer when every expert call
// failed. A roster with zero opinions is a defined terminal mode, not a
// crash.
const DiscussionUnavailableMessage = "죄송합니다. 현재 전문가 토론 서비스를 이용할 수 없습니다. 모델 백엔드가 일시적으로 응답하지 않는 것으로 보입니다. 잠시 후 다시 시도해 주세요."

// defaultOpinionConfidence is assigned to opinions the model returns without
// a self-reported confidence.
const defaultOpinionConfidence = 0.7

// maxPreAnalyzedImages bounds the concurrent image pre-analysis fan-out.
const maxPreAnalyzedImages = 3

// ImageDescriber produces a text description of an uploaded image. Optional;
// when absent, images join the discussion context undescribed.
type ImageDescriber interface {
	Describe(ctx context.Context, img domain.ImageAttachment) (string, error)
}

// DiscussionConfig bounds one discussion run.
type DiscussionConfig struct {
	MaxRounds   int
	MaxExperts  int
	CrossReview bool
	FactCheck   bool
	Model       string
}

// DiscussionDeps holds injected dependencies for the discussion engine.
type DiscussionDeps struct {
	Catalog *catalog.Catalog
	Router  *Router
	LLM     domain.LLMProvider
	Search  domain.SearchProvider // optional, enables fact-check
	Vision  ImageDescriber        // optional, enables image pre-analysis
	Logger  *slog.Logger
}

// DiscussionEngine runs a panel of specialist agents through rounds of
// opinion-giving, cross-review, and synthesis.
type DiscussionEngine struct {
	deps DiscussionDeps
	cfg  DiscussionConfig
}

// NewDiscussionEngine creates a discussion engine.
func NewDiscussionEngine(deps DiscussionDeps, cfg DiscussionConfig) *DiscussionEngine {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 2
	}
	if cfg.MaxExperts <= 0 {
		cfg.MaxExperts = 4
	}
	if cfg.Model == "" {
		cfg.Model = modelSonnet
	}
	return &DiscussionEngine{deps: deps, cfg: cfg}
}

// Run executes the full discussion for a topic. progress may be nil.
func (e *DiscussionEngine) Run(ctx context.Context, req *domain.Request, budget *ContextAssembly, progress domain.ProgressFunc) (*domain.DiscussionResult, error) {
	ctx, span := tracer.StartSpan(ctx, "discussion.run")
	defer span.End()

	start := time.Now()
	notify := func(u domain.ProgressUpdate) {
		if progress != nil {
			progress(u)
		}
	}

	notify(domain.ProgressUpdate{Phase: "selecting", Message: "전문가 패널 구성 중", Percent: 5})
	panel := e.selectPanel(ctx, req.Message)
	participants := make([]string, 0, len(panel))
	for _, a := range panel {
		participants = append(participants, a.Name)
	}
	e.deps.Logger.Info("discussion panel selected",
		"topic_len", len(req.Message), "experts", participants)

	// Descriptions must land in the assembly before the first render; the
	// assembled text is memoized for the rest of the request.
	e.preAnalyzeImages(ctx, req)
	budget.RefreshImages(req.Images)
	contextText := budget.Text()

	result := &domain.DiscussionResult{
		Topic:        req.Message,
		Participants: participants,
	}

	// Rounds run strictly in order; a round starts only after the previous
	// one has produced or skipped an opinion for every expert.
	totalCalls := e.cfg.MaxRounds * len(panel)
	call := 0
	for round := 1; round <= e.cfg.MaxRounds; round++ {
		for _, expert := range panel {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			call++
			notify(domain.ProgressUpdate{
				Phase:   "discussing",
				Message: fmt.Sprintf("%s 의견 수렴 중", expert.Name),
				Percent: 10 + 60*call/maxInt(totalCalls, 1),
				Round:   round,
				Rounds:  e.cfg.MaxRounds,
			})

			opinion, err := e.askExpert(ctx, expert, req.Message, contextText, round, result.Opinions)
			if err != nil {
				if domain.IsCancellation(err) {
					return nil, err
				}
				// One expert's failure never aborts the round.
				e.deps.Logger.Warn("expert opinion failed",
					"agent", expert.ID, "round", round, "error", err)
				continue
			}
			result.Opinions = append(result.Opinions, opinion)
		}
	}

	if len(result.Opinions) == 0 {
		result.Summary = DiscussionUnavailableMessage
		result.Elapsed = time.Since(start)
		tracer.RecordError(span, domain.ErrBackendFailure)
		return result, nil
	}

	if e.cfg.CrossReview && len(result.Opinions) >= 2 {
		notify(domain.ProgressUpdate{Phase: "reviewing", Message: "의견 교차 검토 중", Percent: 75})
		review, err := e.crossReview(ctx, req.Message, result.Opinions)
		if err != nil {
			if domain.IsCancellation(err) {
				return nil, err
			}
			e.deps.Logger.Warn("cross review failed", "error", err)
		} else {
			result.CrossReview = review
		}
	}

	if e.cfg.FactCheck && e.deps.Search != nil {
		notify(domain.ProgressUpdate{Phase: "reviewing", Message: "사실 확인 중", Percent: 85})
		result.FactChecked = e.factCheck(ctx, req.Message)
	}

	notify(domain.ProgressUpdate{Phase: "synthesizing", Message: "최종 답변 정리 중", Percent: 90})
	summary, err := e.synthesize(ctx, req.Message, result.Opinions, result.CrossReview)
	if err != nil {
		if domain.IsCancellation(err) {
			return nil, err
		}
		// Synthesis failure degrades to the raw opinion list.
		e.deps.Logger.Warn("discussion synthesis failed", "error", err)
		summary = renderOpinions(result.Opinions)
	}
	result.Summary = summary
	result.Elapsed = time.Since(start)

	notify(domain.ProgressUpdate{Phase: "complete", Message: "토론 완료", Percent: 100})
	tracer.SetOK(span)
	return result, nil
}

// generalistRoster guarantees a minimum panel when routing finds too few
// specialists.
var generalistRoster = []string{"general", "product-manager"}

// Complementary panel additions by detected domain; the sets are mutually
// exclusive so a technical topic does not pull in marketing voices.
var (
	technicalComplement = []string{"devops-engineer", "security-specialist"}
	businessComplement  = []string{"business-analyst", "financial-advisor"}
	generalComplement   = []string{"tech-writer", "education-tutor"}
)

// selectPanel assembles the expert roster: router primary, classifier
// suggestions, category mates, then domain-specific complements, each added
// once, padded from the generalist roster and capped at MaxExperts.
func (e *DiscussionEngine) selectPanel(ctx context.Context, topic string) []domain.AgentDefinition {
	seen := make(map[string]bool)
	var panel []domain.AgentDefinition

	add := func(id string) {
		if seen[id] || len(panel) >= e.cfg.MaxExperts {
			return
		}
		if a, ok := e.deps.Catalog.Get(id); ok {
			seen[id] = true
			panel = append(panel, a)
		}
	}

	primary := e.deps.Router.Route(ctx, topic, false)
	add(primary.AgentID)

	intent := ClassifyIntent(topic, e.deps.Catalog.Topics())
	for _, id := range intent.SuggestedAgents {
		add(id)
	}

	for _, a := range e.deps.Catalog.ByCategory(primary.Category) {
		add(a.ID)
	}

	for _, id := range complementFor(primary.Category) {
		add(id)
	}

	for _, id := range generalistRoster {
		if len(panel) >= 2 {
			break
		}
		add(id)
	}

	return panel
}

func complementFor(category string) []string {
	switch category {
	case "development", "infrastructure", "data":
		return technicalComplement
	case "business", "finance":
		return businessComplement
	default:
		return generalComplement
	}
}

// preAnalyzeImages fills image descriptions before the discussion so every
// expert sees the same notes. Bounded concurrent fan-out over the first
// three images; failures leave the description empty.
func (e *DiscussionEngine) preAnalyzeImages(ctx context.Context, req *domain.Request) {
	if e.deps.Vision == nil || len(req.Images) == 0 {
		return
	}

	n := len(req.Images)
	if n > maxPreAnalyzedImages {
		n = maxPreAnalyzedImages
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPreAnalyzedImages)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			desc, err := e.deps.Vision.Describe(gctx, req.Images[i])
			if err != nil {
				e.deps.Logger.Warn("image pre-analysis failed",
					"image", req.Images[i].Name, "error", err)
				return nil
			}
			req.Images[i].Description = desc
			return nil
		})
	}
	_ = g.Wait()
}

// askExpert requests one opinion from one expert in one round.
func (e *DiscussionEngine) askExpert(ctx context.Context, expert domain.AgentDefinition, topic, contextText string, round int, prior []domain.DiscussionOpinion) (domain.DiscussionOpinion, error) {
	system := fmt.Sprintf("당신은 %s입니다. %s\n주제에 대해 전문 분야 관점에서 간결하고 구체적인 의견을 제시하세요.",
		expert.Name, expert.Description)
	if contextText != "" {
		system += "\n\n참고 자료:\n" + contextText
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "토론 주제: %s\n", topic)
	if round >= 2 && len(prior) > 0 {
		sb.WriteString("\n지금까지의 의견:\n")
		for _, op := range prior {
			fmt.Fprintf(&sb, "- [%s, %d라운드] %s\n", op.AgentName, op.Round, op.Opinion)
		}
		fmt.Fprintf(&sb, "\n%d라운드입니다. 다른 전문가 의견을 참고해 자신의 의견을 보강하거나 반박하세요.", round)
	}

	resp, err := e.deps.LLM.Chat(ctx, domain.ChatRequest{
		Model: e.cfg.Model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: system, Timestamp: time.Now()},
			{Role: domain.RoleUser, Content: sb.String(), Timestamp: time.Now()},
		},
	})
	if err != nil {
		return domain.DiscussionOpinion{}, err
	}

	return domain.DiscussionOpinion{
		AgentID:    expert.ID,
		AgentName:  expert.Name,
		Icon:       expert.Icon,
		Round:      round,
		Opinion:    resp.Message.Content,
		Confidence: defaultOpinionConfidence,
		Timestamp:  time.Now(),
	}, nil
}

// crossReview produces a short comparison of the collected opinions.
func (e *DiscussionEngine) crossReview(ctx context.Context, topic string, opinions []domain.DiscussionOpinion) (string, error) {
	prompt := fmt.Sprintf("토론 주제: %s\n\n%s\n위 의견들의 강점, 공통점, 상충점을 짧게 비교 분석하세요.",
		topic, renderOpinions(opinions))

	resp, err := e.deps.LLM.Chat(ctx, domain.ChatRequest{
		Model: e.cfg.Model,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: prompt, Timestamp: time.Now()},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// factCheck issues one search keyed on the topic. Its failure never blocks
// the pipeline; only the boolean outcome is recorded.
func (e *DiscussionEngine) factCheck(ctx context.Context, topic string) bool {
	results, err := e.deps.Search.Search(ctx, topic)
	if err != nil {
		e.deps.Logger.Warn("fact-check search failed", "error", err)
		return false
	}
	return len(results) > 0
}

// synthesize combines all opinions plus the cross-review into one answer.
func (e *DiscussionEngine) synthesize(ctx context.Context, topic string, opinions []domain.DiscussionOpinion, crossReview string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "토론 주제: %s\n\n%s", topic, renderOpinions(opinions))
	if crossReview != "" {
		sb.WriteString("\n교차 검토:\n" + crossReview + "\n")
	}
	sb.WriteString("\n위 전문가 토론을 종합해 주제에 대한 하나의 완성된 답변을 작성하세요.")

	resp, err := e.deps.LLM.Chat(ctx, domain.ChatRequest{
		Model: e.cfg.Model,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: sb.String(), Timestamp: time.Now()},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func renderOpinions(opinions []domain.DiscussionOpinion) string {
	var sb strings.Builder
	for _, op := range opinions {
		fmt.Fprintf(&sb, "[%s, %d라운드]\n%s\n\n", op.AgentName, op.Round, op.Opinion)
	}
	return sb.String()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
