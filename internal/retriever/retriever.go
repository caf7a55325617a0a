// Package retriever turns a query into ranked context chunks with source
// provenance: embed the query, search the tenant's nearest-neighbor index,
// and map hits into citable chunks.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ziadkadry99/ragcore/internal/contextwindow"
	"github.com/ziadkadry99/ragcore/internal/embeddings"
	"github.com/ziadkadry99/ragcore/internal/vectordb"
)

// Strategy names the retrieval mode. Only semantic search is implemented;
// the other modes are reserved for caller-selected hybrid ranking.
type Strategy string

const (
	StrategySemantic Strategy = "semantic"
	StrategyHybrid   Strategy = "hybrid"
	StrategyKeyword  Strategy = "keyword"
)

const defaultMaxChunks = 5

// Options controls one retrieval.
type Options struct {
	MaxChunks int      // topK, defaults to 5
	Strategy  Strategy // defaults to semantic
}

// ContextChunk is one ranked retrieval hit.
type ContextChunk struct {
	ID             string
	DocumentID     string
	Text           string
	Score          float64
	StructuralType string
}

// SourceRef is a provenance record, one per distinct document, carrying
// the excerpt of that document's best-scoring chunk.
type SourceRef struct {
	DocumentID     string
	Excerpt        string
	RelevanceScore float64
}

// Result is the outcome of one retrieval. Zero chunks is a valid result:
// "no knowledge base match" is a first-class outcome, not an error.
type Result struct {
	Chunks     []ContextChunk
	Sources    []SourceRef
	TotalScore float64
	Strategy   Strategy
}

// Searcher is the nearest-neighbor service collaborator.
type Searcher interface {
	Search(ctx context.Context, tenantID string, embedding []float32, topK int) ([]vectordb.Hit, error)
}

// AnalyticsRecorder receives one event per retrieval attempt. Recording
// failures never fail the retrieval.
type AnalyticsRecorder interface {
	RecordRetrieval(ctx context.Context, event Event) error
}

// Event is the analytics record of one retrieval attempt.
type Event struct {
	TenantID    string
	Query       string
	ResultCount int
	Latency     time.Duration
	HistorySize int
	Strategy    Strategy
	CreatedAt   time.Time
}

// Retriever performs semantic retrieval for one tenant corpus at a time.
type Retriever struct {
	embedder  embeddings.Embedder
	searcher  Searcher
	analytics AnalyticsRecorder
	logger    *slog.Logger
}

// New creates a Retriever. analytics may be nil to disable recording.
func New(embedder embeddings.Embedder, searcher Searcher, analytics AnalyticsRecorder, logger *slog.Logger) *Retriever {
	return &Retriever{
		embedder:  embedder,
		searcher:  searcher,
		analytics: analytics,
		logger:    logger,
	}
}

// RetrieveContext embeds the query and searches the tenant's index.
// Embedding or search failures propagate unchanged; there are no partial
// results. An empty or blank query yields an empty result.
func (r *Retriever) RetrieveContext(ctx context.Context, query, tenantID string, history []contextwindow.Message, opts Options) (*Result, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategySemantic
	}
	if strategy != StrategySemantic {
		return nil, fmt.Errorf("retrieval strategy %q is not implemented", strategy)
	}

	topK := opts.MaxChunks
	if topK <= 0 {
		topK = defaultMaxChunks
	}

	result := &Result{Strategy: strategy}
	if strings.TrimSpace(query) == "" {
		return result, nil
	}

	start := time.Now()

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}

	hits, err := r.searcher.Search(ctx, tenantID, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor search: %w", err)
	}

	bestPerDoc := make(map[string]int)
	for _, hit := range hits {
		result.Chunks = append(result.Chunks, ContextChunk{
			ID:             hit.ID,
			DocumentID:     hit.Payload.DocumentID,
			Text:           hit.Payload.Text,
			Score:          hit.Score,
			StructuralType: hit.Payload.StructuralType,
		})
		result.TotalScore += hit.Score

		// One source per document, keeping the best-scoring excerpt.
		// Hits arrive score-descending, so first wins.
		if _, seen := bestPerDoc[hit.Payload.DocumentID]; !seen {
			bestPerDoc[hit.Payload.DocumentID] = len(result.Sources)
			result.Sources = append(result.Sources, SourceRef{
				DocumentID:     hit.Payload.DocumentID,
				Excerpt:        excerpt(hit.Payload.Text),
				RelevanceScore: hit.Score,
			})
		}
	}

	r.record(ctx, Event{
		TenantID:    tenantID,
		Query:       query,
		ResultCount: len(result.Chunks),
		Latency:     time.Since(start),
		HistorySize: len(history),
		Strategy:    strategy,
		CreatedAt:   start,
	})
	return result, nil
}

// record is fire-and-forget: an analytics failure is logged and swallowed.
func (r *Retriever) record(ctx context.Context, event Event) {
	if r.analytics == nil {
		return
	}
	if err := r.analytics.RecordRetrieval(ctx, event); err != nil {
		r.logger.Warn("recording retrieval analytics failed",
			"tenant_id", event.TenantID,
			"error", err,
		)
	}
}

const excerptLimit = 200

// excerpt trims chunk text to a citation-sized snippet.
func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= excerptLimit {
		return text
	}
	cut := text[:excerptLimit]
	if idx := strings.LastIndexByte(cut, ' '); idx > excerptLimit/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
