package domain

import "time"

// Mode selects the top-level execution mode for a request.
type Mode string

const (
	ModeChat         Mode = "chat"
	ModeDiscussion   Mode = "discussion"
	ModeDeepResearch Mode = "deep_research"
)

// ImageAttachment is an uploaded image carried with a request.
type ImageAttachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
	// Description is filled by image pre-analysis when available.
	Description string `json:"description,omitempty"`
}

// Request is the per-request aggregate passed through the orchestrator.
// It is owned exclusively by one in-flight request and never shared.
type Request struct {
	ID      string
	Message string
	History []Message
	Tier    string
	Mode    Mode

	// Optional auxiliary context sources.
	DocumentText  string
	Images        []ImageAttachment
	WebSearchText string
	MemoryText    string

	// OnToken receives streamed output tokens. May be nil.
	// Tokens are delivered in order from the single strategy that is
	// streaming; two strategies never interleave within one request.
	OnToken func(token string)
}

// Emit forwards a token to the sink if one is attached.
func (r *Request) Emit(token string) {
	if r.OnToken != nil && token != "" {
		r.OnToken(token)
	}
}

// StrategyResult is the outcome of one execution strategy.
// Succeeded=false marks a recoverable failure the dispatcher may fall
// back from; hard errors are reserved for cancellation and contract
// violations.
type StrategyResult struct {
	Text      string        `json:"text"`
	Succeeded bool          `json:"succeeded"`
	Strategy  string        `json:"strategy"`
	Model     string        `json:"model,omitempty"`
	Usage     Usage         `json:"usage"`
	Turns     int           `json:"turns,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// DispatchResult is returned to the caller after a request completes.
type DispatchResult struct {
	Text     string        `json:"text"`
	AgentID  string        `json:"agent_id"`
	Model    string        `json:"model"`
	Strategy string        `json:"strategy"`
	Usage    Usage         `json:"usage"`
	Elapsed  time.Duration `json:"elapsed"`
}

// DiscussionOpinion is one expert's contribution in one round.
// Opinions are appended to an ordered list and never rewritten.
type DiscussionOpinion struct {
	AgentID    string    `json:"agent_id"`
	AgentName  string    `json:"agent_name"`
	Icon       string    `json:"icon,omitempty"`
	Round      int       `json:"round"`
	Opinion    string    `json:"opinion"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// DiscussionResult is the final outcome of a multi-expert discussion.
type DiscussionResult struct {
	Topic        string              `json:"topic"`
	Summary      string              `json:"summary"`
	Participants []string            `json:"participants"`
	Opinions     []DiscussionOpinion `json:"opinions"`
	CrossReview  string              `json:"cross_review,omitempty"`
	FactChecked  bool                `json:"fact_checked"`
	Elapsed      time.Duration       `json:"elapsed"`
}

// ProgressUpdate is a fire-and-forget notification for long-running modes.
type ProgressUpdate struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
	Round   int    `json:"round,omitempty"`
	Rounds  int    `json:"rounds,omitempty"`
}

// ProgressFunc receives progress updates. Implementations must not block;
// the engine does not wait for acknowledgment.
type ProgressFunc func(ProgressUpdate)
