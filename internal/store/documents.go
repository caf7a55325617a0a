package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Document is the indexed-source metadata row. The chunk text itself lives
// in the vector store; this table tracks what was indexed and when.
type Document struct {
	ID          string
	TenantID    string
	Name        string
	ContentHash string
	ChunkCount  int
	IndexedAt   time.Time
}

// UpsertDocument records an indexed document, replacing any previous entry
// with the same ID.
func (d *DB) UpsertDocument(ctx context.Context, doc Document) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, name, content_hash, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			indexed_at = datetime('now')`,
		doc.ID, doc.TenantID, doc.Name, doc.ContentHash, doc.ChunkCount)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}
	return nil
}

// GetDocument fetches one document by ID, scoped to the tenant. Returns
// sql.ErrNoRows when the document is unknown.
func (d *DB) GetDocument(ctx context.Context, tenantID, id string) (Document, error) {
	var doc Document
	err := d.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, content_hash, chunk_count, indexed_at
		FROM documents
		WHERE tenant_id = ? AND id = ?`,
		tenantID, id).Scan(&doc.ID, &doc.TenantID, &doc.Name, &doc.ContentHash, &doc.ChunkCount, &doc.IndexedAt)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// ListDocuments returns all indexed documents for a tenant, newest first.
func (d *DB) ListDocuments(ctx context.Context, tenantID string) ([]Document, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT id, tenant_id, name, content_hash, chunk_count, indexed_at
		FROM documents
		WHERE tenant_id = ?
		ORDER BY indexed_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.TenantID, &doc.Name, &doc.ContentHash, &doc.ChunkCount, &doc.IndexedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document's metadata row. Returns the number of
// rows removed so callers can detect unknown IDs.
func (d *DB) DeleteDocument(ctx context.Context, tenantID, id string) (int64, error) {
	res, err := d.ExecContext(ctx, `
		DELETE FROM documents WHERE tenant_id = ? AND id = ?`,
		tenantID, id)
	if err != nil {
		return 0, fmt.Errorf("deleting document: %w", err)
	}
	return res.RowsAffected()
}

// UnchangedSince reports whether a document with the given ID already exists
// with the same content hash, letting the indexer skip re-embedding.
func (d *DB) UnchangedSince(ctx context.Context, tenantID, id, contentHash string) (bool, error) {
	var stored string
	err := d.QueryRowContext(ctx, `
		SELECT content_hash FROM documents
		WHERE tenant_id = ? AND id = ?`,
		tenantID, id).Scan(&stored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking document hash: %w", err)
	}
	return stored == contentHash, nil
}
