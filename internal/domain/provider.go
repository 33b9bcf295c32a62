package domain

import "context"

// LLMProvider is the interface for any model-inference backend.
// The target model is carried in the request; a single provider may
// serve several models (e.g. a Bedrock region).
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "bedrock").
	Name() string
}

// StreamDelta is a single incremental chunk from a streaming LLM response.
// A mid-stream failure is delivered as a final delta with Err set; the
// channel closes after it. Consumers must treat accumulated text before an
// Err delta as incomplete.
type StreamDelta struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Done      bool       `json:"done,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
	Err       error      `json:"-"`
}

// StreamingLLMProvider extends LLMProvider with streaming support.
type StreamingLLMProvider interface {
	LLMProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}
