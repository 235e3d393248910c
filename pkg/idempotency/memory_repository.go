package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps keys and processed messages in process memory.
// It serves the memory storage driver and tests.
type MemoryRepository struct {
	mu       sync.Mutex
	keys     map[string]*IdempotencyKey
	messages map[string]*ProcessedMessage
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		keys:     make(map[string]*IdempotencyKey),
		messages: make(map[string]*ProcessedMessage),
	}
}

func (r *MemoryRepository) AcquireLock(_ context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.keys[key.ID]; ok && time.Now().Before(existing.ExpiresAt) {
		c := *existing
		return &c, false, nil
	}

	c := *key
	r.keys[key.ID] = &c
	return key, true, nil
}

func (r *MemoryRepository) StoreResponse(_ context.Context, key *IdempotencyKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *key
	r.keys[key.ID] = &c
	return nil
}

func (r *MemoryRepository) ReleaseLock(_ context.Context, keyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.keys, keyID)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, keyID string) (*IdempotencyKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.keys[keyID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *existing
	return &c, nil
}

func (r *MemoryRepository) MarkProcessed(_ context.Context, msg *ProcessedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[msg.ID]; ok {
		return ErrMessageAlreadyProcessed
	}
	c := *msg
	r.messages[msg.ID] = &c
	return nil
}

func (r *MemoryRepository) IsProcessed(_ context.Context, consumerGroup, topic, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.messages[ProcessedMessageID(consumerGroup, topic, messageID)]
	return ok, nil
}
