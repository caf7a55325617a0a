// Package provider normalizes requests, responses, errors, and streaming
// across interchangeable LLM backends. Callers never see a backend's native
// error shape; retry decisions come exclusively from the normalized
// retryable flag.
package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrModerationNotSupported is returned by backends without a moderation
// endpoint.
var ErrModerationNotSupported = errors.New("moderation not supported by this backend")

// Provider is one LLM backend behind the normalized envelope.
type Provider interface {
	// Name identifies the backend ("openai", "anthropic", "ollama").
	Name() string

	// Generate performs a blocking completion.
	Generate(ctx context.Context, req Request) (*Response, error)

	// GenerateStream starts a streaming completion. The returned channel
	// is finite and closed after the final chunk; canceling ctx stops the
	// stream and releases the underlying connection. Content already
	// delivered is not retracted.
	GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, error)

	// Moderate checks text against the backend's content policy.
	Moderate(ctx context.Context, text string) (*ModerationResult, error)
}

// Backend identifies a supported provider implementation.
type Backend string

const (
	BackendOpenAI    Backend = "openai"
	BackendAnthropic Backend = "anthropic"
	BackendOllama    Backend = "ollama"
)

// NewBackend constructs a bare provider client for the given backend.
func NewBackend(backend Backend, creds Credentials, cfg Config) (Provider, error) {
	switch backend {
	case BackendOpenAI:
		return NewOpenAI(creds, cfg), nil
	case BackendAnthropic:
		return NewAnthropic(creds, cfg), nil
	case BackendOllama:
		return NewOllama(creds, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider backend: %s", backend)
	}
}

// Registry memoizes one client per (tenant, credential-fingerprint) pair
// for the process lifetime. Rotated credentials produce a new fingerprint
// and therefore a fresh client; stale entries are simply never hit again.
type Registry struct {
	mu      sync.Mutex
	clients map[clientKey]Provider
	logger  *slog.Logger
}

type clientKey struct {
	tenantID    string
	backend     Backend
	fingerprint string
}

// NewRegistry creates an empty client registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clients: make(map[clientKey]Provider),
		logger:  logger,
	}
}

// Get returns the memoized client for the tenant and credentials, creating
// and wrapping it with retry on first use.
func (r *Registry) Get(tenantID string, backend Backend, creds Credentials, cfg Config) (Provider, error) {
	key := clientKey{
		tenantID:    tenantID,
		backend:     backend,
		fingerprint: fingerprint(creds),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.clients[key]; ok {
		return p, nil
	}

	base, err := NewBackend(backend, creds, cfg)
	if err != nil {
		return nil, err
	}
	p := WithRetry(base, RetryConfig{MaxAttempts: cfg.MaxAttempts, Logger: r.logger})
	if cfg.RequestsPerMinute > 0 {
		p = WithRateLimit(p, cfg.RequestsPerMinute)
	}
	r.clients[key] = p
	return p, nil
}

func fingerprint(creds Credentials) string {
	sum := sha256.Sum256([]byte(creds.APIKey + "\x00" + creds.BaseURL))
	return hex.EncodeToString(sum[:])
}
