package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wms-platform/inventory-ledger/pkg/outbox"
)

// OutboxRepository implements outbox.Repository on the outbox_events table
type OutboxRepository struct {
	db sqlx.ExtContext
}

// NewOutboxRepository creates a repository bound to the pool
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// WithTx returns a repository whose writes join tx
func (r *OutboxRepository) WithTx(tx *sqlx.Tx) *OutboxRepository {
	return &OutboxRepository{db: tx}
}

const insertOutboxEvent = `
INSERT INTO outbox_events
	(id, aggregate_id, aggregate_type, event_type, topic, payload, created_at, retry_count, max_retries)
VALUES
	($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9)`

// SaveAll inserts events. The payload is sent as text; lib/pq would encode []byte as bytea.
func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	for _, event := range events {
		_, err := r.db.ExecContext(ctx, insertOutboxEvent,
			event.ID, event.AggregateID, event.AggregateType, event.EventType, event.Topic,
			string(event.Payload), event.CreatedAt, event.RetryCount, event.MaxRetries)
		if err != nil {
			return fmt.Errorf("failed to save outbox event %s: %w", event.ID, err)
		}
	}
	return nil
}

// FindUnpublished retrieves unpublished events that have retries left
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	var events []*outbox.OutboxEvent
	err := sqlx.SelectContext(ctx, r.db, &events, `
		SELECT id, aggregate_id, aggregate_type, event_type, topic, payload, created_at,
		       published_at, retry_count, COALESCE(last_error, '') AS last_error, max_retries
		FROM outbox_events
		WHERE published_at IS NULL AND retry_count < max_retries
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find unpublished events: %w", err)
	}
	return events, nil
}

// MarkPublished marks an event as published
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET published_at = $2 WHERE id = $1`, eventID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	return requireRow(res.RowsAffected, eventID)
}

// IncrementRetry increments the retry count and updates last error
func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET retry_count = retry_count + 1, last_error = $2 WHERE id = $1`,
		eventID, errorMsg)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return requireRow(res.RowsAffected, eventID)
}

// DeletePublished deletes published events older than the given age in seconds
func (r *OutboxRepository) DeletePublished(ctx context.Context, olderThanSeconds int64) (int64, error) {
	threshold := time.Now().UTC().Add(-time.Duration(olderThanSeconds) * time.Second)
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE published_at IS NOT NULL AND published_at < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to delete published events: %w", err)
	}
	return res.RowsAffected()
}

func requireRow(rowsAffected func() (int64, error), eventID string) error {
	n, err := rowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}
	return nil
}
