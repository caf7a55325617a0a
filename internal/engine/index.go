package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/ziadkadry99/ragcore/internal/chunker"
	"github.com/ziadkadry99/ragcore/internal/store"
	"github.com/ziadkadry99/ragcore/internal/vectordb"
)

// Indexer runs the ingestion pipeline: chunk a document, embed and store
// the chunks, and record the document metadata.
type Indexer struct {
	opts    chunker.Options
	vectors *vectordb.Store
	db      *store.DB
	logger  *slog.Logger
}

// NewIndexer creates an Indexer with the given chunking options.
func NewIndexer(opts chunker.Options, vectors *vectordb.Store, db *store.DB, logger *slog.Logger) *Indexer {
	return &Indexer{
		opts:    opts,
		vectors: vectors,
		db:      db,
		logger:  logger,
	}
}

// IndexResult reports one ingestion.
type IndexResult struct {
	DocumentID string
	ChunkCount int
	Skipped    bool // content unchanged since last indexing
}

// IndexDocument chunks and indexes one document for the tenant. Re-indexing
// unchanged content is a no-op; changed content replaces the previous
// chunks.
func (ix *Indexer) IndexDocument(ctx context.Context, tenantID, documentID, name, text string) (*IndexResult, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document id must not be empty")
	}

	hash := contentHash(text)
	unchanged, err := ix.db.UnchangedSince(ctx, tenantID, documentID, hash)
	if err != nil {
		return nil, fmt.Errorf("checking document state: %w", err)
	}
	if unchanged {
		ix.logger.Debug("document unchanged, skipping",
			"tenant_id", tenantID,
			"document_id", documentID,
		)
		return &IndexResult{DocumentID: documentID, Skipped: true}, nil
	}

	chunks, err := chunker.Split(documentID, text, ix.opts)
	if err != nil {
		return nil, fmt.Errorf("chunking document %s: %w", documentID, err)
	}

	// Drop stale chunks before writing the new set so a shrinking document
	// leaves no orphans behind.
	if err := ix.vectors.DeleteDocument(ctx, tenantID, documentID); err != nil {
		return nil, fmt.Errorf("clearing previous chunks: %w", err)
	}
	if err := ix.vectors.Index(ctx, tenantID, chunks); err != nil {
		return nil, fmt.Errorf("indexing chunks: %w", err)
	}

	if err := ix.db.UpsertDocument(ctx, store.Document{
		ID:          documentID,
		TenantID:    tenantID,
		Name:        name,
		ContentHash: hash,
		ChunkCount:  len(chunks),
	}); err != nil {
		return nil, fmt.Errorf("recording document: %w", err)
	}

	ix.logger.Info("document indexed",
		"tenant_id", tenantID,
		"document_id", documentID,
		"chunks", len(chunks),
	)
	return &IndexResult{DocumentID: documentID, ChunkCount: len(chunks)}, nil
}

// RemoveDocument deletes a document's chunks and metadata.
func (ix *Indexer) RemoveDocument(ctx context.Context, tenantID, documentID string) error {
	if err := ix.vectors.DeleteDocument(ctx, tenantID, documentID); err != nil {
		return fmt.Errorf("removing chunks: %w", err)
	}
	if _, err := ix.db.DeleteDocument(ctx, tenantID, documentID); err != nil {
		return fmt.Errorf("removing document record: %w", err)
	}
	return nil
}

// Documents lists the tenant's indexed documents.
func (ix *Indexer) Documents(ctx context.Context, tenantID string) ([]store.Document, error) {
	return ix.db.ListDocuments(ctx, tenantID)
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
