package domain

import "context"

// SearchResult is a single hit from a web search backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchProvider abstracts an external web search capability.
// It is optional; components that accept one must tolerate nil.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}
