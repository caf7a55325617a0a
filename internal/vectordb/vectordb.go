// Package vectordb implements the nearest-neighbor search service on
// chromem-go. Each tenant gets its own collection so results can never leak
// across tenants.
package vectordb

import (
	"context"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/ragcore/internal/chunker"
	"github.com/ziadkadry99/ragcore/internal/embeddings"
)

// Hit is one nearest-neighbor result.
type Hit struct {
	ID      string
	Score   float64
	Payload Payload
}

// Payload is the stored chunk data carried back with a hit.
type Payload struct {
	DocumentID     string
	Text           string
	StructuralType string
	StartOffset    int
	EndOffset      int
}

// Store wraps a chromem database with per-tenant collections.
type Store struct {
	db        *chromem.DB
	embedFunc chromem.EmbeddingFunc
}

// New creates an in-memory store.
func New(embedder embeddings.Embedder) *Store {
	return &Store{
		db:        chromem.NewDB(),
		embedFunc: embeddings.ToChromemFunc(embedder),
	}
}

// NewPersistent creates a store persisted under dir.
func NewPersistent(dir string, embedder embeddings.Embedder) (*Store, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	return &Store{
		db:        db,
		embedFunc: embeddings.ToChromemFunc(embedder),
	}, nil
}

// Index stores the chunks of one document for the tenant, replacing any
// previous chunks with the same ids.
func (s *Store) Index(ctx context.Context, tenantID string, chunks []chunker.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	col, err := s.collection(tenantID)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      c.ID,
			Content: c.Text,
			Metadata: map[string]string{
				"document_id":     c.DocumentID,
				"chunk_index":     strconv.Itoa(c.Index),
				"structural_type": string(c.StructuralType),
				"start_offset":    strconv.Itoa(c.StartOffset),
				"end_offset":      strconv.Itoa(c.EndOffset),
			},
		}
	}
	return col.AddDocuments(ctx, docs, 1)
}

// Search returns the topK nearest chunks for the embedding. An empty
// collection yields an empty result, not an error.
func (s *Store) Search(ctx context.Context, tenantID string, embedding []float32, topK int) ([]Hit, error) {
	col, err := s.collection(tenantID)
	if err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem requires nResults <= collection size.
	if topK > count {
		topK = count
	}

	results, err := col.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		start, _ := strconv.Atoi(r.Metadata["start_offset"])
		end, _ := strconv.Atoi(r.Metadata["end_offset"])
		hits[i] = Hit{
			ID:    r.ID,
			Score: float64(r.Similarity),
			Payload: Payload{
				DocumentID:     r.Metadata["document_id"],
				Text:           r.Content,
				StructuralType: r.Metadata["structural_type"],
				StartOffset:    start,
				EndOffset:      end,
			},
		}
	}
	return hits, nil
}

// DeleteDocument removes every chunk of the document from the tenant's
// collection.
func (s *Store) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	col, err := s.collection(tenantID)
	if err != nil {
		return err
	}
	return col.Delete(ctx, map[string]string{"document_id": documentID}, nil)
}

// Count returns the number of chunks indexed for the tenant.
func (s *Store) Count(tenantID string) int {
	col, err := s.collection(tenantID)
	if err != nil {
		return 0
	}
	return col.Count()
}

// Export writes a compressed snapshot of every collection to path. Useful
// for backing up an in-memory store.
func (s *Store) Export(path string) error {
	if err := s.db.ExportToFile(path, true, ""); err != nil {
		return fmt.Errorf("exporting vector store: %w", err)
	}
	return nil
}

// Import restores a snapshot written by Export, merging into the current
// collections.
func (s *Store) Import(path string) error {
	if err := s.db.ImportFromFile(path, ""); err != nil {
		return fmt.Errorf("importing vector store: %w", err)
	}
	return nil
}

func (s *Store) collection(tenantID string) (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection("tenant:"+tenantID, nil, s.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("tenant collection %q: %w", tenantID, err)
	}
	return col, nil
}
