package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/ragcore/internal/contextwindow"
)

// ListRecentMessages returns up to limit trailing messages for a
// conversation, oldest first.
func (d *DB) ListRecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]contextwindow.StoredMessage, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT id, role, content, created_at
		FROM messages
		WHERE tenant_id = ? AND conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		tenantID, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []contextwindow.StoredMessage
	for rows.Next() {
		var m contextwindow.StoredMessage
		var role string
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = contextwindow.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	// Query returned newest first so the LIMIT takes the tail; flip back
	// to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SystemPromptFor returns the stored system prompt override for the
// conversation, or "" when the conversation is unknown.
func (d *DB) SystemPromptFor(ctx context.Context, tenantID, conversationID string) (string, error) {
	var prompt string
	err := d.QueryRowContext(ctx, `
		SELECT system_prompt FROM conversations
		WHERE tenant_id = ? AND id = ?`,
		tenantID, conversationID).Scan(&prompt)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying conversation: %w", err)
	}
	return prompt, nil
}

// AppendMessage durably records one message, creating the conversation row
// on first write.
func (d *DB) AppendMessage(ctx context.Context, tenantID, conversationID string, msg contextwindow.Message) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, tenant_id)
		VALUES (?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET updated_at = datetime('now')`,
		conversationID, tenantID); err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	id := msg.ID
	if id == "" {
		id = uuid.New().String()
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, tenant_id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, tenantID, conversationID, string(msg.Role), msg.Content, ts.UTC()); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	return tx.Commit()
}

// SetSystemPrompt stores a per-conversation system prompt override.
func (d *DB) SetSystemPrompt(ctx context.Context, tenantID, conversationID, prompt string) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO conversations (id, tenant_id, system_prompt)
		VALUES (?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			system_prompt = excluded.system_prompt,
			updated_at = datetime('now')`,
		conversationID, tenantID, prompt)
	if err != nil {
		return fmt.Errorf("storing system prompt: %w", err)
	}
	return nil
}
