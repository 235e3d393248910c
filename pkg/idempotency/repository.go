package idempotency

import "context"

// KeyRepository stores Idempotency-Key records
type KeyRepository interface {
	// AcquireLock inserts key locked, or returns the record already stored under key.ID.
	// isNew is true only when this call created the record.
	AcquireLock(ctx context.Context, key *IdempotencyKey) (existing *IdempotencyKey, isNew bool, err error)

	// StoreResponse persists a completed key
	StoreResponse(ctx context.Context, key *IdempotencyKey) error

	// ReleaseLock forgets a key whose request should be retried
	ReleaseLock(ctx context.Context, keyID string) error

	// Get returns the stored key, or ErrNotFound
	Get(ctx context.Context, keyID string) (*IdempotencyKey, error)
}

// MessageRepository records which CloudEvents a consumer group has handled
type MessageRepository interface {
	// MarkProcessed returns ErrMessageAlreadyProcessed when the message was already recorded
	MarkProcessed(ctx context.Context, msg *ProcessedMessage) error
	IsProcessed(ctx context.Context, consumerGroup, topic, messageID string) (bool, error)
}
