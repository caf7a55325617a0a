package provider

import (
	"context"
	"log/slog"
	"time"
)

// RetryConfig bounds the automatic re-attempt policy for retryable errors.
type RetryConfig struct {
	MaxAttempts     int           // total attempts, including the first
	InitialInterval time.Duration // first backoff delay
	MaxInterval     time.Duration // backoff cap
	Logger          *slog.Logger
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// retryProvider wraps a Provider with bounded exponential backoff, applied
// only to errors carrying the retryable flag. Configuration and data errors
// fail immediately.
type retryProvider struct {
	inner Provider
	cfg   RetryConfig
}

// WithRetry wraps p with the retry policy.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &retryProvider{inner: p, cfg: cfg.withDefaults()}
}

func (r *retryProvider) Name() string {
	return r.inner.Name()
}

func (r *retryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := r.attempt(ctx, func() error {
		var callErr error
		resp, callErr = r.inner.Generate(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *retryProvider) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	// Only the initial connect is retried. Once chunks flow, a failure
	// surfaces through the stream; partial content is never retracted.
	var ch <-chan StreamChunk
	err := r.attempt(ctx, func() error {
		var callErr error
		ch, callErr = r.inner.GenerateStream(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (r *retryProvider) Moderate(ctx context.Context, text string) (*ModerationResult, error) {
	var result *ModerationResult
	err := r.attempt(ctx, func() error {
		var callErr error
		result, callErr = r.inner.Moderate(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *retryProvider) attempt(ctx context.Context, call func() error) error {
	delay := r.cfg.InitialInterval
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == r.cfg.MaxAttempts {
			return lastErr
		}

		r.cfg.Logger.Debug("retrying provider call",
			"provider", r.inner.Name(),
			"attempt", attempt,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = min(delay*2, r.cfg.MaxInterval)
		}
	}
	return lastErr
}
