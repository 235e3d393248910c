package idempotency

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	KeysCollection              = "idempotency_keys"
	ProcessedMessagesCollection = "processed_messages"
)

// MongoKeyRepository implements KeyRepository using MongoDB
type MongoKeyRepository struct {
	collection *mongo.Collection
}

// NewMongoKeyRepository creates a new MongoDB-backed key repository
func NewMongoKeyRepository(db *mongo.Database) *MongoKeyRepository {
	return &MongoKeyRepository{collection: db.Collection(KeysCollection)}
}

// AcquireLock inserts the key, falling back to the stored record on a duplicate _id
func (r *MongoKeyRepository) AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	_, err := r.collection.InsertOne(ctx, key)
	if err == nil {
		return key, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, err
	}

	existing, err := r.Get(ctx, key.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *MongoKeyRepository) StoreResponse(ctx context.Context, key *IdempotencyKey) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": key.ID}, key, opts)
	return err
}

func (r *MongoKeyRepository) ReleaseLock(ctx context.Context, keyID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": keyID})
	return err
}

func (r *MongoKeyRepository) Get(ctx context.Context, keyID string) (*IdempotencyKey, error) {
	var key IdempotencyKey
	err := r.collection.FindOne(ctx, bson.M{"_id": keyID}).Decode(&key)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// EnsureIndexes creates the TTL index that expires old keys
func (r *MongoKeyRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("idx_idempotency_ttl").SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "serviceId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_idempotency_service"),
		},
	})
	return err
}

// MongoMessageRepository implements MessageRepository using MongoDB
type MongoMessageRepository struct {
	collection *mongo.Collection
}

// NewMongoMessageRepository creates a new MongoDB-backed message repository
func NewMongoMessageRepository(db *mongo.Database) *MongoMessageRepository {
	return &MongoMessageRepository{collection: db.Collection(ProcessedMessagesCollection)}
}

func (r *MongoMessageRepository) MarkProcessed(ctx context.Context, msg *ProcessedMessage) error {
	_, err := r.collection.InsertOne(ctx, msg)
	if mongo.IsDuplicateKeyError(err) {
		return ErrMessageAlreadyProcessed
	}
	return err
}

func (r *MongoMessageRepository) IsProcessed(ctx context.Context, consumerGroup, topic, messageID string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx,
		bson.M{"_id": ProcessedMessageID(consumerGroup, topic, messageID)},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// EnsureIndexes creates the TTL index on expiresAt
func (r *MongoMessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetName("idx_processed_ttl").SetExpireAfterSeconds(0),
	})
	return err
}
