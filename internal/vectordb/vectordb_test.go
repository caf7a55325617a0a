package vectordb

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ziadkadry99/ragcore/internal/chunker"
)

// keywordEmbedder maps texts onto fixed axes so similarity rankings are
// deterministic without a real embedding model.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = axisFor(text)
	}
	return out, nil
}

func (keywordEmbedder) Dimensions() int { return 3 }
func (keywordEmbedder) Name() string    { return "keyword-test" }

func axisFor(text string) []float32 {
	switch {
	case strings.Contains(text, "alpha"):
		return []float32{1, 0, 0}
	case strings.Contains(text, "beta"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func testChunk(id, docID, text string, index int) chunker.Chunk {
	return chunker.Chunk{
		ID:             id,
		DocumentID:     docID,
		Index:          index,
		Text:           text,
		StartOffset:    0,
		EndOffset:      len(text),
		StructuralType: chunker.StructuralParagraph,
		ParentIndex:    -1,
	}
}

func TestIndexAndSearch(t *testing.T) {
	s := New(keywordEmbedder{})
	ctx := context.Background()

	err := s.Index(ctx, "t1", []chunker.Chunk{
		testChunk("c1", "doc-1", "alpha facts", 0),
		testChunk("c2", "doc-1", "beta facts", 1),
		testChunk("c3", "doc-2", "gamma facts", 0),
	})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if got := s.Count("t1"); got != 3 {
		t.Fatalf("Count: got %d, want 3", got)
	}

	hits, err := s.Search(ctx, "t1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != "c1" {
		t.Errorf("best hit: got %q, want c1", hits[0].ID)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("hits not score-descending: %v then %v", hits[0].Score, hits[1].Score)
	}
	if hits[0].Payload.DocumentID != "doc-1" || hits[0].Payload.Text != "alpha facts" {
		t.Errorf("payload: %+v", hits[0].Payload)
	}
	if hits[0].Payload.StructuralType != string(chunker.StructuralParagraph) {
		t.Errorf("structural type: %q", hits[0].Payload.StructuralType)
	}
	if hits[0].Payload.EndOffset != len("alpha facts") {
		t.Errorf("end offset: %d", hits[0].Payload.EndOffset)
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	s := New(keywordEmbedder{})

	hits, err := s.Search(context.Background(), "empty-tenant", []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search on empty collection: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits, want 0", len(hits))
	}
}

func TestSearchClampsTopK(t *testing.T) {
	s := New(keywordEmbedder{})
	ctx := context.Background()

	if err := s.Index(ctx, "t1", []chunker.Chunk{testChunk("c1", "doc-1", "alpha", 0)}); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	// topK above the collection size must not error.
	hits, err := s.Search(ctx, "t1", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits, want 1", len(hits))
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New(keywordEmbedder{})
	ctx := context.Background()

	if err := s.Index(ctx, "t1", []chunker.Chunk{testChunk("c1", "doc-1", "alpha", 0)}); err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if err := s.Index(ctx, "t2", []chunker.Chunk{testChunk("c2", "doc-2", "beta", 0)}); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	hits, err := s.Search(ctx, "t2", []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, h := range hits {
		if h.Payload.DocumentID == "doc-1" {
			t.Fatalf("tenant t2 saw tenant t1's chunk: %+v", h)
		}
	}
	if s.Count("t1") != 1 || s.Count("t2") != 1 {
		t.Errorf("counts: t1=%d t2=%d", s.Count("t1"), s.Count("t2"))
	}
}

func TestDeleteDocument(t *testing.T) {
	s := New(keywordEmbedder{})
	ctx := context.Background()

	err := s.Index(ctx, "t1", []chunker.Chunk{
		testChunk("c1", "doc-1", "alpha one", 0),
		testChunk("c2", "doc-1", "alpha two", 1),
		testChunk("c3", "doc-2", "beta", 0),
	})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	if err := s.DeleteDocument(ctx, "t1", "doc-1"); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if got := s.Count("t1"); got != 1 {
		t.Fatalf("Count after delete: got %d, want 1", got)
	}

	hits, err := s.Search(ctx, "t1", []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, h := range hits {
		if h.Payload.DocumentID == "doc-1" {
			t.Fatalf("deleted document still searchable: %+v", h)
		}
	}
}

func TestIndexReplacesSameIDs(t *testing.T) {
	s := New(keywordEmbedder{})
	ctx := context.Background()

	if err := s.Index(ctx, "t1", []chunker.Chunk{testChunk("c1", "doc-1", "alpha old", 0)}); err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if err := s.Index(ctx, "t1", []chunker.Chunk{testChunk("c1", "doc-1", "alpha new", 0)}); err != nil {
		t.Fatalf("re-Index failed: %v", err)
	}

	if got := s.Count("t1"); got != 1 {
		t.Fatalf("Count: got %d, want 1", got)
	}
	hits, err := s.Search(ctx, "t1", []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if hits[0].Payload.Text != "alpha new" {
		t.Errorf("chunk not replaced: %q", hits[0].Payload.Text)
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.gob.gz")

	src := New(keywordEmbedder{})
	if err := src.Index(ctx, "t1", []chunker.Chunk{testChunk("c1", "doc-1", "alpha", 0)}); err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if err := src.Export(path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := New(keywordEmbedder{})
	if err := dst.Import(path); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if got := dst.Count("t1"); got != 1 {
		t.Fatalf("Count after import: got %d, want 1", got)
	}
	hits, err := dst.Search(ctx, "t1", []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if hits[0].Payload.DocumentID != "doc-1" {
		t.Errorf("hit after import: %+v", hits[0])
	}
}

func TestIndexEmptyChunks(t *testing.T) {
	s := New(keywordEmbedder{})
	if err := s.Index(context.Background(), "t1", nil); err != nil {
		t.Fatalf("Index with no chunks: %v", err)
	}
	if got := s.Count("t1"); got != 0 {
		t.Errorf("Count: got %d, want 0", got)
	}
}
