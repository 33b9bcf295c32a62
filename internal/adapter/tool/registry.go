// Package tool provides the built-in tools and the MCP bridge behind
// domain.ToolExecutor.
package tool

import (
	"fmt"
	"sync"

	"github.com/openmake/ensemble/internal/domain"
)

// Registry holds named tools and implements domain.ToolExecutor.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]domain.Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]domain.Tool)}
}

// Register adds a tool. Duplicate names are an error.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get implements domain.ToolExecutor.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("tool.Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Schemas implements domain.ToolExecutor, in registration order.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Schema())
	}
	return out
}

var _ domain.ToolExecutor = (*Registry)(nil)
