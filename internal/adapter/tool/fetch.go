package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/openmake/ensemble/internal/domain"
)

const fetchTimeout = 20 * time.Second

// PageFetch downloads a web page and reduces it to readable text. It serves
// the agent loop as a domain.Tool and the research engine as a fetcher.
type PageFetch struct {
	client   *http.Client
	maxBytes int
	logger   *slog.Logger
}

// NewPageFetch creates a page fetcher with a response size cap.
func NewPageFetch(maxBytes int, logger *slog.Logger) *PageFetch {
	if maxBytes <= 0 {
		maxBytes = 512 * 1024
	}
	return &PageFetch{
		client:   &http.Client{Timeout: fetchTimeout},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Fetch retrieves the page and strips markup.
func (f *PageFetch) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("unsupported url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch failed (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.maxBytes)))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	text := stripHTML(string(body))
	f.logger.Debug("page fetched", "url", rawURL, "bytes", len(body), "text_len", len(text))
	return text, nil
}

// --- domain.Tool ---

// Name implements domain.Tool.
func (f *PageFetch) Name() string { return "web_fetch" }

// Description implements domain.Tool.
func (f *PageFetch) Description() string {
	return "웹 페이지를 가져와 본문 텍스트를 추출합니다. 검색 결과의 내용을 자세히 읽을 때 사용하세요."
}

// Schema implements domain.Tool.
func (f *PageFetch) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        f.Name(),
		Description: f.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "description": "가져올 페이지의 URL"}
			},
			"required": ["url"]
		}`),
	}
}

// Execute implements domain.Tool.
func (f *PageFetch) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(params, &args); err != nil || args.URL == "" {
		return &domain.ToolResult{Content: "invalid arguments: url is required", IsError: true}, nil
	}

	text, err := f.Fetch(ctx, args.URL)
	if err != nil {
		return &domain.ToolResult{Content: "Error: " + err.Error(), IsError: true}, nil
	}
	return &domain.ToolResult{Content: text}, nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// stripHTML removes script/style blocks and tags, then collapses blank runs.
// Deliberately crude; tools feed models, not browsers.
func stripHTML(s string) string {
	s = scriptRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, "\n")
	s = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

var _ domain.Tool = (*PageFetch)(nil)
