package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/config"
)

// Registry holds named providers. Registration happens at startup; lookups
// afterwards are concurrent.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]domain.LLMProvider)}
}

// Register adds a provider under its own name.
func (r *Registry) Register(p domain.LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the named provider.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("llm.Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the configured provider with its resilience wrappers:
// rate limiter innermost, circuit breaker outermost.
func Build(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch cfg.Provider {
	case "bedrock":
		base, err := NewBedrockProvider(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		limited := NewLimitedProvider(base, cfg.RatePerSecond, cfg.Burst)
		return NewBreakerProvider(limited, cfg.Breaker, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrProviderNotFound, cfg.Provider)
	}
}
