package domain

import (
	"context"
	"time"
)

// DecisionRecord captures how one request was routed and executed.
// Records are emitted to an external sink; the core does not define
// their storage schema beyond this shape.
type DecisionRecord struct {
	RequestID      string        `json:"request_id"`
	Mode           Mode          `json:"mode"`
	QueryLength    int           `json:"query_length"`
	HistoryDepth   int           `json:"history_depth"`
	HasDocument    bool          `json:"has_document"`
	ImageCount     int           `json:"image_count"`
	AgentID        string        `json:"agent_id"`
	RoutingStage   string        `json:"routing_stage"`
	Confidence     float64       `json:"confidence"`
	Model          string        `json:"model"`
	Strategy       string        `json:"strategy"`
	FallbackReason string        `json:"fallback_reason,omitempty"`
	SecurityFlag   string        `json:"security_flag,omitempty"`
	PromptTokens   int           `json:"prompt_tokens"`
	OutputTokens   int           `json:"output_tokens"`
	Elapsed        time.Duration `json:"elapsed"`
	CreatedAt      time.Time     `json:"created_at"`
}

// DecisionSink receives routing-decision records. Implementations must be
// safe for concurrent use; a sink failure must never fail the request.
type DecisionSink interface {
	Record(ctx context.Context, rec DecisionRecord) error
}
