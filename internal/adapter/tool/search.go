package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openmake/ensemble/internal/domain"
)

const (
	maxSearchBodySize    = 512 * 1024
	defaultSearchResults = 5
	searchTimeout        = 15 * time.Second
)

// searxResponse models the relevant part of a SearXNG JSON response.
type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// WebSearch queries a SearXNG-compatible instance. It doubles as a
// domain.Tool for the agent loop and a domain.SearchProvider for
// fact-checking and research.
type WebSearch struct {
	client      *http.Client
	instanceURL string
	logger      *slog.Logger
}

// NewWebSearch creates a search backend for a SearXNG instance URL.
func NewWebSearch(instanceURL string, logger *slog.Logger) *WebSearch {
	return &WebSearch{
		client:      &http.Client{Timeout: searchTimeout},
		instanceURL: strings.TrimRight(instanceURL, "/"),
		logger:      logger,
	}
}

// Search implements domain.SearchProvider.
func (s *WebSearch) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.instanceURL+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("pageno", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed (HTTP %d)", resp.StatusCode)
	}

	var parsed searxResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]domain.SearchResult, 0, defaultSearchResults)
	for _, r := range parsed.Results {
		if len(results) >= defaultSearchResults {
			break
		}
		results = append(results, domain.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
		})
	}

	s.logger.Debug("web search completed", "query", query, "results", len(results))
	return results, nil
}

// --- domain.Tool ---

// Name implements domain.Tool.
func (s *WebSearch) Name() string { return "web_search" }

// Description implements domain.Tool.
func (s *WebSearch) Description() string {
	return "웹에서 정보를 검색합니다. 최신 정보나 외부 사실 확인이 필요할 때 사용하세요."
}

// Schema implements domain.Tool.
func (s *WebSearch) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        s.Name(),
		Description: s.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "검색어"}
			},
			"required": ["query"]
		}`),
	}
}

// Execute implements domain.Tool.
func (s *WebSearch) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &args); err != nil || strings.TrimSpace(args.Query) == "" {
		return &domain.ToolResult{Content: "invalid arguments: query is required", IsError: true}, nil
	}

	results, err := s.Search(ctx, args.Query)
	if err != nil {
		return &domain.ToolResult{Content: "Error: " + err.Error(), IsError: true}, nil
	}
	if len(results) == 0 {
		return &domain.ToolResult{Content: "검색 결과가 없습니다."}, nil
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return &domain.ToolResult{Content: strings.TrimSpace(sb.String())}, nil
}

var (
	_ domain.SearchProvider = (*WebSearch)(nil)
	_ domain.Tool           = (*WebSearch)(nil)
)
