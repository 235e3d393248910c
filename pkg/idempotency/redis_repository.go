package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix     = "idempotency:key:"
	redisMessagePrefix = "idempotency:msg:"
)

// RedisRepository implements KeyRepository and MessageRepository on Redis.
// Records are JSON values whose TTL is their retention period.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a Redis-backed repository
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

// AcquireLock claims the key with SETNX, or returns the record already stored
func (r *RedisRepository) AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	payload, err := json.Marshal(key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode idempotency key: %w", err)
	}

	ok, err := r.client.SetNX(ctx, redisKeyPrefix+key.ID, payload, ttlUntil(key.ExpiresAt)).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return key, true, nil
	}

	existing, err := r.Get(ctx, key.ID)
	if errors.Is(err, ErrNotFound) {
		// expired between SETNX and GET
		return r.AcquireLock(ctx, key)
	}
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *RedisRepository) StoreResponse(ctx context.Context, key *IdempotencyKey) error {
	payload, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency key: %w", err)
	}
	return r.client.Set(ctx, redisKeyPrefix+key.ID, payload, ttlUntil(key.ExpiresAt)).Err()
}

func (r *RedisRepository) ReleaseLock(ctx context.Context, keyID string) error {
	return r.client.Del(ctx, redisKeyPrefix+keyID).Err()
}

func (r *RedisRepository) Get(ctx context.Context, keyID string) (*IdempotencyKey, error) {
	payload, err := r.client.Get(ctx, redisKeyPrefix+keyID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var key IdempotencyKey
	if err := json.Unmarshal(payload, &key); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency key %s: %w", keyID, err)
	}
	return &key, nil
}

func (r *RedisRepository) MarkProcessed(ctx context.Context, msg *ProcessedMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode processed message: %w", err)
	}

	ok, err := r.client.SetNX(ctx, redisMessagePrefix+msg.ID, payload, ttlUntil(msg.ExpiresAt)).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrMessageAlreadyProcessed
	}
	return nil
}

func (r *RedisRepository) IsProcessed(ctx context.Context, consumerGroup, topic, messageID string) (bool, error) {
	n, err := r.client.Exists(ctx, redisMessagePrefix+ProcessedMessageID(consumerGroup, topic, messageID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks connectivity for readiness probes
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func ttlUntil(t time.Time) time.Duration {
	ttl := time.Until(t)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
