package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/openmake/ensemble/internal/domain"
)

// LimitedProvider wraps an LLMProvider with a client-side token bucket so
// burst traffic queues locally instead of tripping backend throttling.
type LimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

// NewLimitedProvider wraps inner with a rate limiter of ratePerSecond and
// burst capacity.
func NewLimitedProvider(inner domain.LLMProvider, ratePerSecond float64, burst int) *LimitedProvider {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &LimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Chat implements domain.LLMProvider. Wait blocks until a token is
// available or ctx is done.
func (p *LimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Chat(ctx, req)
}

// ChatStream implements domain.StreamingLLMProvider when the inner provider
// does.
func (p *LimitedProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	sp, ok := p.inner.(domain.StreamingLLMProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q does not support streaming", p.inner.Name())
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return sp.ChatStream(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *LimitedProvider) Name() string { return p.inner.Name() }

var (
	_ domain.LLMProvider          = (*LimitedProvider)(nil)
	_ domain.StreamingLLMProvider = (*LimitedProvider)(nil)
)
