package usecase

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/openmake/ensemble/internal/domain"
)

// Source priorities; lower value means higher priority. These are the
// defaults applied when a caller does not declare one.
const (
	PriorityMemory   = 1
	PriorityHistory  = 2
	PriorityDocument = 3
	PrioritySearch   = 4
	PriorityImages   = 5
)

// Per-source default size caps in token-equivalent characters.
const (
	defaultSourceMax = 4000
	// minPartialRoom is the smallest remainder of the global budget worth
	// filling with a partial section; below this the section is dropped.
	minPartialRoom = 100
)

// defaultPriorities maps well-known source labels to their priorities.
var defaultPriorities = map[string]int{
	"장기 기억":  PriorityMemory,
	"대화 기록":  PriorityHistory,
	"업로드 문서": PriorityDocument,
	"웹 검색 결과": PrioritySearch,
	"이미지 분석": PriorityImages,
}

// contextSource is one prioritized text source inside an assembly.
type contextSource struct {
	priority int
	label    string
	content  string
	maxChars int
}

// ContextAssembly builds the bounded auxiliary context for one request.
// The assembled text is memoized: every strategy step and discussion
// expert within a request sees byte-identical context.
type ContextAssembly struct {
	budget  int
	sources []contextSource
	logger  *slog.Logger

	once sync.Once
	text string
}

// NewContextAssembly creates an assembly with a global character budget.
func NewContextAssembly(budget int, logger *slog.Logger) *ContextAssembly {
	if budget <= 0 {
		budget = 12000
	}
	return &ContextAssembly{budget: budget, logger: logger}
}

// Add registers a source. Empty content is ignored. priority <= 0 selects
// the label's default (or a low catch-all for unknown labels); maxChars <= 0
// selects the default per-source cap. Add must not be called after the
// first Text() call.
func (a *ContextAssembly) Add(label, content string, priority, maxChars int) {
	if strings.TrimSpace(content) == "" {
		return
	}
	if priority <= 0 {
		if p, ok := defaultPriorities[label]; ok {
			priority = p
		} else {
			priority = 50
		}
	}
	if maxChars <= 0 {
		maxChars = defaultSourceMax
	}
	a.sources = append(a.sources, contextSource{
		priority: priority,
		label:    label,
		content:  content,
		maxChars: maxChars,
	})
}

// FromRequest registers the standard sources of a request in one call.
func (a *ContextAssembly) FromRequest(req *domain.Request) {
	a.Add("장기 기억", req.MemoryText, 0, 2000)
	a.Add("대화 기록", renderHistory(req.History), 0, 4000)
	a.Add("업로드 문서", req.DocumentText, 0, 6000)
	a.Add("웹 검색 결과", req.WebSearchText, 0, 3000)
	a.Add("이미지 분석", renderImageNotes(req.Images), 0, 2000)
}

// RefreshImages re-renders the image source after pre-analysis has filled
// descriptions. An already registered image source is replaced in place so
// the section keeps its position; otherwise the source is added. Must be
// called before the first Text() call.
func (a *ContextAssembly) RefreshImages(images []domain.ImageAttachment) {
	content := renderImageNotes(images)
	if strings.TrimSpace(content) == "" {
		return
	}
	for i := range a.sources {
		if a.sources[i].label == "이미지 분석" {
			a.sources[i].content = content
			return
		}
	}
	a.Add("이미지 분석", content, 0, 2000)
}

// Text assembles and returns the budgeted context. The first call computes
// it; later calls return the identical string.
func (a *ContextAssembly) Text() string {
	a.once.Do(func() {
		a.text = a.assemble()
	})
	return a.text
}

// Tokens returns the token count of the assembled text, using the cl100k
// encoding with a chars/4 fallback.
func (a *ContextAssembly) Tokens() int {
	return CountTokens(a.Text())
}

func (a *ContextAssembly) assemble() string {
	items := make([]contextSource, len(a.sources))
	copy(items, a.sources)

	// Stable: equal priorities keep insertion order.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].priority < items[j].priority
	})

	var sb strings.Builder
	remaining := a.budget

	for _, item := range items {
		content := truncateMiddle(item.content, item.maxChars)
		section := "## " + item.label + "\n" + content + "\n\n"
		length := len([]rune(section))

		if length <= remaining {
			sb.WriteString(section)
			remaining -= length
			continue
		}

		// The overflowing item is still partially included when enough
		// room remains; everything after it is dropped entirely.
		if remaining >= minPartialRoom {
			header := "## " + item.label + "\n"
			room := remaining - len([]rune(header)) - 2
			if room > 0 {
				sb.WriteString(header)
				sb.WriteString(truncateMiddle(content, room))
				sb.WriteString("\n\n")
			}
		} else if a.logger != nil {
			a.logger.Debug("context source dropped over budget",
				"label", item.label, "remaining", remaining)
		}
		break
	}

	return strings.TrimRight(sb.String(), "\n")
}

// truncateMiddle caps content at max runes, keeping the head and tail
// halves so lead-in and conclusion survive, with a marker noting how much
// was elided.
func truncateMiddle(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}

	marker := fmt.Sprintf("\n... [%d자 생략] ...\n", len(runes)-max)
	half := (max - len([]rune(marker))) / 2
	if half <= 0 {
		return string(runes[:max])
	}
	return string(runes[:half]) + marker + string(runes[len(runes)-half:])
}

func renderHistory(history []domain.Message) string {
	if len(history) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, m := range history {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	return sb.String()
}

func renderImageNotes(images []domain.ImageAttachment) string {
	var sb strings.Builder
	for _, img := range images {
		if img.Description == "" {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", img.Name, img.Description)
	}
	return sb.String()
}

// tokenEncoder is loaded once; tiktoken initialization is not free.
var (
	tokenEncoderOnce sync.Once
	tokenEncoder     *tiktoken.Tiktoken
)

// CountTokens returns the cl100k_base token count of text, falling back to
// a chars/4 estimate when the encoding cannot be loaded.
func CountTokens(text string) int {
	tokenEncoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenEncoder = enc
		}
	})
	if tokenEncoder == nil {
		return len([]rune(text)) / 4
	}
	return len(tokenEncoder.Encode(text, nil, nil))
}
