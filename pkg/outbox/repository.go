package outbox

import "context"

// Repository defines outbox persistence used by the relay
type Repository interface {
	// SaveAll saves events. Called inside the ledger transaction.
	SaveAll(ctx context.Context, events []*OutboxEvent) error

	// FindUnpublished retrieves unpublished events that still have retries left, oldest first
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	MarkPublished(ctx context.Context, eventID string) error

	// IncrementRetry increments the retry count and records the last error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error

	// DeletePublished deletes events published more than olderThanSeconds ago
	DeletePublished(ctx context.Context, olderThanSeconds int64) (int64, error)
}
