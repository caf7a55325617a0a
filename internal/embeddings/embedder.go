// Package embeddings generates text embeddings behind a small interface so
// the retriever and the vector store stay backend-agnostic.
package embeddings

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector width.
	Dimensions() int

	// Name identifies the embedding model.
	Name() string
}
