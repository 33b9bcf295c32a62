package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/tracer"
)

// StrategyResearch is the iterative search-and-synthesize strategy.
const StrategyResearch = "deep_research"

// Research bounds.
const (
	defaultResearchQueries = 3
	maxFetchedPages        = 2
	maxSnippetsPerQuery    = 5
)

// PageFetcher retrieves the readable text of a web page. Optional; without
// it research works from search snippets alone.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ResearchDeps holds injected dependencies for deep research.
type ResearchDeps struct {
	LLM     domain.LLMProvider
	Search  domain.SearchProvider
	Fetcher PageFetcher // optional
	Logger  *slog.Logger
	Model   string
	Queries int
}

// ResearchEngine answers a question by planning sub-queries, searching,
// reading the top sources, and writing a cited report.
type ResearchEngine struct {
	deps ResearchDeps
}

// NewResearchEngine creates a research engine.
func NewResearchEngine(deps ResearchDeps) *ResearchEngine {
	if deps.Queries <= 0 {
		deps.Queries = defaultResearchQueries
	}
	if deps.Model == "" {
		deps.Model = modelSonnet
	}
	return &ResearchEngine{deps: deps}
}

const planSystemPrompt = `사용자의 질문을 조사하기 위한 웹 검색어를 만드세요.
JSON 배열로만 응답하세요. 예: ["검색어 1", "검색어 2", "검색어 3"]`

// Execute runs the research pipeline for one request. Individual search or
// fetch failures degrade the evidence set; only a fully empty evidence set
// fails the strategy.
func (e *ResearchEngine) Execute(ctx context.Context, req *domain.Request, progress domain.ProgressFunc) (*domain.StrategyResult, error) {
	ctx, span := tracer.StartSpan(ctx, "strategy.deep_research")
	defer span.End()

	start := time.Now()
	notify := func(u domain.ProgressUpdate) {
		if progress != nil {
			progress(u)
		}
	}

	notify(domain.ProgressUpdate{Phase: "planning", Message: "조사 계획 수립 중", Percent: 10})
	queries, usage := e.planQueries(ctx, req.Message)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var totalUsage domain.Usage
	totalUsage.Add(usage)

	notify(domain.ProgressUpdate{Phase: "searching", Message: "자료 검색 중", Percent: 30})
	evidence, sources := e.gather(ctx, queries)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if evidence == "" {
		tracer.RecordError(span, domain.ErrBackendFailure)
		return &domain.StrategyResult{
			Succeeded: false,
			Strategy:  StrategyResearch,
			Usage:     totalUsage,
			Elapsed:   time.Since(start),
		}, nil
	}

	notify(domain.ProgressUpdate{Phase: "synthesizing", Message: "보고서 작성 중", Percent: 80})
	report, usage, err := e.writeReport(ctx, req.Message, evidence, sources)
	totalUsage.Add(usage)
	if err != nil {
		if domain.IsCancellation(err) {
			return nil, err
		}
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError("ResearchEngine.Execute", err, e.deps.Model)
	}

	req.Emit(report)
	notify(domain.ProgressUpdate{Phase: "complete", Message: "조사 완료", Percent: 100})
	tracer.SetOK(span)
	return &domain.StrategyResult{
		Text:      report,
		Succeeded: true,
		Strategy:  StrategyResearch,
		Model:     e.deps.Model,
		Usage:     totalUsage,
		Elapsed:   time.Since(start),
	}, nil
}

// planQueries asks the model for sub-queries, falling back to the raw
// question when the plan cannot be parsed.
func (e *ResearchEngine) planQueries(ctx context.Context, question string) ([]string, domain.Usage) {
	resp, err := e.deps.LLM.Chat(ctx, domain.ChatRequest{
		Model: e.deps.Model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: planSystemPrompt, Timestamp: time.Now()},
			{Role: domain.RoleUser, Content: question, Timestamp: time.Now()},
		},
		MaxTokens:   300,
		Temperature: 0,
	})
	if err != nil {
		e.deps.Logger.Warn("research planning failed, using raw question", "error", err)
		return []string{question}, domain.Usage{}
	}

	var queries []string
	text := resp.Message.Content
	if i, j := strings.Index(text, "["), strings.LastIndex(text, "]"); i >= 0 && j > i {
		if err := json.Unmarshal([]byte(text[i:j+1]), &queries); err != nil {
			queries = nil
		}
	}
	if len(queries) == 0 {
		queries = []string{question}
	}
	if len(queries) > e.deps.Queries {
		queries = queries[:e.deps.Queries]
	}
	return queries, resp.Usage
}

// gather runs the searches and reads top pages, building the evidence text
// and the source list for citations.
func (e *ResearchEngine) gather(ctx context.Context, queries []string) (string, []domain.SearchResult) {
	var sb strings.Builder
	var sources []domain.SearchResult
	fetched := 0

	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		results, err := e.deps.Search.Search(ctx, q)
		if err != nil {
			e.deps.Logger.Warn("research search failed", "query", q, "error", err)
			continue
		}
		if len(results) > maxSnippetsPerQuery {
			results = results[:maxSnippetsPerQuery]
		}

		fmt.Fprintf(&sb, "### 검색어: %s\n", q)
		for _, r := range results {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
			sources = append(sources, r)
		}

		if e.deps.Fetcher != nil && fetched < maxFetchedPages && len(results) > 0 {
			page, err := e.deps.Fetcher.Fetch(ctx, results[0].URL)
			if err != nil {
				e.deps.Logger.Warn("research page fetch failed",
					"url", results[0].URL, "error", err)
			} else {
				fetched++
				fmt.Fprintf(&sb, "\n본문 (%s):\n%s\n", results[0].URL, truncateMiddle(page, 3000))
			}
		}
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String()), sources
}

// writeReport produces the final cited answer.
func (e *ResearchEngine) writeReport(ctx context.Context, question, evidence string, sources []domain.SearchResult) (string, domain.Usage, error) {
	var refs strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&refs, "[%d] %s - %s\n", i+1, s.Title, s.URL)
	}

	prompt := fmt.Sprintf(`질문: %s

수집된 자료:
%s

출처 목록:
%s
위 자료를 근거로 질문에 대한 구조화된 보고서를 작성하세요. 주장마다 [번호] 형식으로 출처를 표기하고, 자료에 없는 내용은 추측이라고 명시하세요.`,
		question, evidence, refs.String())

	resp, err := e.deps.LLM.Chat(ctx, domain.ChatRequest{
		Model: e.deps.Model,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: prompt, Timestamp: time.Now()},
		},
	})
	if err != nil {
		return "", domain.Usage{}, err
	}
	return resp.Message.Content, resp.Usage, nil
}
