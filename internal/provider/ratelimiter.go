package provider

import (
	"context"
	"sync"
	"time"
)

// rateLimitedProvider wraps a Provider with a token bucket allowing at most
// rpm requests per minute. Streaming counts as one request at connect time.
type rateLimitedProvider struct {
	inner    Provider
	rpm      int
	mu       sync.Mutex
	tokens   int
	lastFill time.Time
}

// WithRateLimit wraps p with an rpm request-per-minute limit.
func WithRateLimit(p Provider, rpm int) Provider {
	return &rateLimitedProvider{
		inner:    p,
		rpm:      rpm,
		tokens:   rpm,
		lastFill: time.Now(),
	}
}

func (r *rateLimitedProvider) Name() string {
	return r.inner.Name()
}

func (r *rateLimitedProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Generate(ctx, req)
}

func (r *rateLimitedProvider) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.GenerateStream(ctx, req)
}

func (r *rateLimitedProvider) Moderate(ctx context.Context, text string) (*ModerationResult, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Moderate(ctx, text)
}

func (r *rateLimitedProvider) wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(r.lastFill)

		refill := int(elapsed.Seconds() * float64(r.rpm) / 60.0)
		if refill > 0 {
			r.tokens = min(r.tokens+refill, r.rpm)
			r.lastFill = now
		}

		if r.tokens > 0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
