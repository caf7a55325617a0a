package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingProvider struct {
	calls int
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	c.calls++
	return &Response{Content: "ok"}, nil
}

func (c *countingProvider) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	c.calls++
	ch := make(chan StreamChunk)
	close(ch)
	return ch, nil
}

func (c *countingProvider) Moderate(ctx context.Context, text string) (*ModerationResult, error) {
	c.calls++
	return &ModerationResult{}, nil
}

func TestRateLimitAllowsWithinBudget(t *testing.T) {
	inner := &countingProvider{}
	p := WithRateLimit(inner, 10)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := p.Generate(ctx, Request{}); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if inner.calls != 10 {
		t.Errorf("inner calls: %d", inner.calls)
	}
}

func TestRateLimitBlocksWhenExhausted(t *testing.T) {
	inner := &countingProvider{}
	p := WithRateLimit(inner, 1)

	ctx := context.Background()
	if _, err := p.Generate(ctx, Request{}); err != nil {
		t.Fatalf("first request: %v", err)
	}

	// The bucket is empty; a short deadline must cancel the wait rather
	// than letting the call through.
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := p.Generate(shortCtx, Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner called while rate limited: %d calls", inner.calls)
	}
}

func TestRateLimitStreamCountsAtConnect(t *testing.T) {
	inner := &countingProvider{}
	p := WithRateLimit(inner, 1)

	ctx := context.Background()
	ch, err := p.GenerateStream(ctx, Request{})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	for range ch {
	}

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := p.Generate(shortCtx, Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded after stream consumed the budget", err)
	}
}

func TestRateLimitPreservesName(t *testing.T) {
	p := WithRateLimit(&countingProvider{}, 5)
	if p.Name() != "counting" {
		t.Errorf("name: %q", p.Name())
	}
}
