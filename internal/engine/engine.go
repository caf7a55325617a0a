// Package engine orchestrates one chat turn: load the conversation window,
// retrieve knowledge chunks, aggregate confidence, call the provider, and
// persist both turns.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ziadkadry99/ragcore/internal/confidence"
	"github.com/ziadkadry99/ragcore/internal/config"
	"github.com/ziadkadry99/ragcore/internal/contextwindow"
	"github.com/ziadkadry99/ragcore/internal/provider"
	"github.com/ziadkadry99/ragcore/internal/retriever"
)

// ChatRequest is one user turn.
type ChatRequest struct {
	TenantID       string
	ConversationID string
	Message        string
}

// ChatResponse is the completed answer with provenance.
type ChatResponse struct {
	ConversationID string
	Content        string
	Model          string
	Sources        []retriever.SourceRef
	Confidence     confidence.Score
	Usage          provider.Usage
}

// StreamEvent is one increment of a streaming answer. Exactly one of the
// payload groups is set, keyed by Type.
type StreamEvent struct {
	Type       StreamEventType
	Delta      string
	Content    string
	Sources    []retriever.SourceRef
	Confidence confidence.Score
	Usage      *provider.Usage
	Err        error
}

// StreamEventType tags a StreamEvent.
type StreamEventType string

const (
	EventSources  StreamEventType = "sources"
	EventContent  StreamEventType = "content"
	EventComplete StreamEventType = "complete"
	EventError    StreamEventType = "error"
)

// Engine wires the retrieval pipeline to a provider backend.
type Engine struct {
	cfg       *config.Config
	manager   *contextwindow.Manager
	retriever *retriever.Retriever
	providers *provider.Registry
	indexer   *Indexer
	creds     provider.Credentials
	backend   provider.Backend
	logger    *slog.Logger
}

// New creates an Engine. The indexer may be shared with the CLI.
func New(cfg *config.Config, manager *contextwindow.Manager, ret *retriever.Retriever, providers *provider.Registry, indexer *Indexer, creds provider.Credentials, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		manager:   manager,
		retriever: ret,
		providers: providers,
		indexer:   indexer,
		creds:     creds,
		backend:   provider.Backend(cfg.Provider),
		logger:    logger,
	}
}

// Indexer returns the document indexing pipeline.
func (e *Engine) Indexer() *Indexer { return e.indexer }

// Respond runs one blocking chat turn.
func (e *Engine) Respond(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("message must not be empty")
	}

	turn, err := e.prepareTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	p, err := e.provider(req.TenantID)
	if err != nil {
		return nil, err
	}

	resp, err := p.Generate(ctx, turn.request)
	if err != nil {
		return nil, fmt.Errorf("generating response: %w", err)
	}

	if err := e.persistTurn(ctx, req, resp.Content); err != nil {
		return nil, err
	}

	return &ChatResponse{
		ConversationID: req.ConversationID,
		Content:        resp.Content,
		Model:          resp.Model,
		Sources:        turn.sources,
		Confidence:     turn.confidence,
		Usage:          resp.Usage,
	}, nil
}

// RespondStream runs one streaming chat turn. The returned channel emits a
// sources event first, content events as text arrives, and a complete event
// last; it is closed after the final event. A failure mid-stream emits an
// error event instead of complete.
func (e *Engine) RespondStream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("message must not be empty")
	}

	turn, err := e.prepareTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	p, err := e.provider(req.TenantID)
	if err != nil {
		return nil, err
	}

	chunks, err := p.GenerateStream(ctx, turn.request)
	if err != nil {
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)

		out <- StreamEvent{
			Type:       EventSources,
			Sources:    turn.sources,
			Confidence: turn.confidence,
		}

		var content string
		var usage *provider.Usage
		var streamErr error
		for chunk := range chunks {
			if chunk.Err != nil {
				streamErr = chunk.Err
				break
			}
			if chunk.Delta != "" {
				content = chunk.Content
				out <- StreamEvent{Type: EventContent, Delta: chunk.Delta, Content: chunk.Content}
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
		}

		if ctx.Err() != nil {
			out <- StreamEvent{Type: EventError, Err: ctx.Err()}
			return
		}

		// A stream that closed without a usage-bearing final chunk was
		// cut off; the truncated text must not be reported or stored as
		// a completed answer.
		if streamErr == nil && usage == nil {
			streamErr = provider.StreamInterrupted(nil)
		}
		if streamErr != nil {
			e.logger.Error("stream failed before completion",
				"tenant_id", req.TenantID,
				"conversation_id", req.ConversationID,
				"error", streamErr,
			)
			out <- StreamEvent{Type: EventError, Err: streamErr}
			return
		}

		if err := e.persistTurn(ctx, req, content); err != nil {
			e.logger.Error("persisting streamed turn failed",
				"tenant_id", req.TenantID,
				"conversation_id", req.ConversationID,
				"error", err,
			)
			out <- StreamEvent{Type: EventError, Err: err}
			return
		}

		out <- StreamEvent{Type: EventComplete, Content: content, Usage: usage}
	}()
	return out, nil
}

// preparedTurn carries everything assembled before the provider call.
type preparedTurn struct {
	request    provider.Request
	sources    []retriever.SourceRef
	confidence confidence.Score
}

func (e *Engine) prepareTurn(ctx context.Context, req ChatRequest) (*preparedTurn, error) {
	windowCfg := contextwindow.Config{
		MaxContextTokens: e.cfg.Context.MaxContextTokens,
		SystemPrompt:     e.cfg.SystemPrompt,
	}

	window, err := e.manager.GetContext(ctx, req.ConversationID, req.TenantID, windowCfg)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	result, err := e.retriever.RetrieveContext(ctx, req.Message, req.TenantID, window.Messages, retriever.Options{
		MaxChunks: e.cfg.Retrieval.MaxChunks,
		Strategy:  retriever.Strategy(e.cfg.Retrieval.Strategy),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	score := confidence.Aggregate(confidenceSources(result.Sources))

	return &preparedTurn{
		request: provider.Request{
			Model:       e.cfg.Model,
			Context:     assembleContext(window, result, e.cfg.SystemPrompt),
			UserMessage: req.Message,
		},
		sources:    result.Sources,
		confidence: score,
	}, nil
}

// persistTurn records the user message and the assistant answer. The window
// manager trims and refreshes its cache as a side effect.
func (e *Engine) persistTurn(ctx context.Context, req ChatRequest, answer string) error {
	windowCfg := contextwindow.Config{
		MaxContextTokens: e.cfg.Context.MaxContextTokens,
		SystemPrompt:     e.cfg.SystemPrompt,
	}
	now := time.Now()

	if _, err := e.manager.AddMessage(ctx, req.ConversationID, req.TenantID, contextwindow.Message{
		Role:      contextwindow.RoleUser,
		Content:   req.Message,
		Timestamp: now,
	}, windowCfg); err != nil {
		return fmt.Errorf("persisting user turn: %w", err)
	}

	if _, err := e.manager.AddMessage(ctx, req.ConversationID, req.TenantID, contextwindow.Message{
		Role:      contextwindow.RoleAssistant,
		Content:   answer,
		Timestamp: now.Add(time.Millisecond),
	}, windowCfg); err != nil {
		return fmt.Errorf("persisting assistant turn: %w", err)
	}
	return nil
}

func (e *Engine) provider(tenantID string) (provider.Provider, error) {
	p, err := e.providers.Get(tenantID, e.backend, e.creds, provider.Config{
		SystemPrompt:      e.cfg.SystemPrompt,
		MaxAttempts:       provider.DefaultMaxAttempts,
		RequestsPerMinute: e.cfg.RequestsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("acquiring provider client: %w", err)
	}
	return p, nil
}

func confidenceSources(refs []retriever.SourceRef) []confidence.Source {
	out := make([]confidence.Source, len(refs))
	for i, ref := range refs {
		out[i] = confidence.Source{ID: ref.DocumentID, RelevanceScore: ref.RelevanceScore}
	}
	return out
}
