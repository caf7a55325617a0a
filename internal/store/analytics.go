package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/ragcore/internal/retriever"
)

// RecordRetrieval stores one retrieval analytics event.
func (d *DB) RecordRetrieval(ctx context.Context, event retriever.Event) error {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := d.ExecContext(ctx, `
		INSERT INTO retrieval_events
			(id, tenant_id, query, result_count, latency_ms, history_size, strategy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(),
		event.TenantID,
		event.Query,
		event.ResultCount,
		event.Latency.Milliseconds(),
		event.HistorySize,
		string(event.Strategy),
		createdAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting retrieval event: %w", err)
	}
	return nil
}

// RetrievalStats summarizes a tenant's recent retrieval activity.
type RetrievalStats struct {
	TotalQueries  int
	EmptyResults  int
	AvgLatencyMS  float64
	AvgResultSize float64
}

// RetrievalStatsSince aggregates analytics events recorded after the cutoff.
func (d *DB) RetrievalStatsSince(ctx context.Context, tenantID string, since time.Time) (RetrievalStats, error) {
	var s RetrievalStats
	err := d.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN result_count = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(latency_ms), 0),
			COALESCE(AVG(result_count), 0)
		FROM retrieval_events
		WHERE tenant_id = ? AND created_at >= ?`,
		tenantID, since.UTC()).Scan(&s.TotalQueries, &s.EmptyResults, &s.AvgLatencyMS, &s.AvgResultSize)
	if err != nil {
		return RetrievalStats{}, fmt.Errorf("aggregating retrieval stats: %w", err)
	}
	return s, nil
}
