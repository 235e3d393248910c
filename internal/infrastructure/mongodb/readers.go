package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/inventory-ledger/internal/domain"
	sharedmongo "github.com/wms-platform/inventory-ledger/pkg/mongodb"
)

// StockReader implements domain.StockRecordReader
type StockReader struct {
	collection *mongo.Collection
}

// NewStockReader creates a new StockReader
func NewStockReader(db *mongo.Database) *StockReader {
	return &StockReader{collection: db.Collection(StockCollection)}
}

var recordOrder = sharedmongo.SortMultiple(
	sharedmongo.SortField{Field: "variantId"},
	sharedmongo.SortField{Field: "locationId"},
)

func (r *StockReader) FindByVariant(ctx context.Context, variantID string) ([]*domain.StockRecord, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"variantId": variantID}, sharedmongo.PageOptions(0, 0, recordOrder))
	if err != nil {
		return nil, fmt.Errorf("failed to find stock records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*domain.StockRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode stock records: %w", err)
	}
	return records, nil
}

func (r *StockReader) FindOne(ctx context.Context, variantID, locationID string) (*domain.StockRecord, error) {
	var record domain.StockRecord
	err := r.collection.FindOne(ctx, bson.M{"variantId": variantID, "locationId": locationID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find stock record: %w", err)
	}
	return &record, nil
}

func (r *StockReader) FindLowStock(ctx context.Context, threshold *int, offset, limit int64) ([]*domain.StockRecord, int64, error) {
	filter := bson.M{"$expr": bson.M{"$lt": bson.A{"$quantity", "$minimum"}}}
	if threshold != nil {
		filter = bson.M{"quantity": bson.M{"$lt": *threshold}}
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count low stock: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, sharedmongo.PageOptions(offset, limit, recordOrder))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find low stock: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*domain.StockRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, fmt.Errorf("failed to decode low stock: %w", err)
	}
	return records, total, nil
}

// MovementReader implements domain.MovementReader
type MovementReader struct {
	collection *mongo.Collection
}

// NewMovementReader creates a new MovementReader
func NewMovementReader(db *mongo.Database) *MovementReader {
	return &MovementReader{collection: db.Collection(MovementsCollection)}
}

func (r *MovementReader) FindByVariant(ctx context.Context, variantID string, offset, limit int64) ([]*domain.Movement, int64, error) {
	filter := bson.M{"variantId": variantID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count movements: %w", err)
	}

	order := sharedmongo.SortMultiple(
		sharedmongo.SortField{Field: "createdAt", Descending: true},
		sharedmongo.SortField{Field: "_id", Descending: true},
	)
	cursor, err := r.collection.Find(ctx, filter, sharedmongo.PageOptions(offset, limit, order))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find movements: %w", err)
	}
	defer cursor.Close(ctx)

	var movements []*domain.Movement
	if err := cursor.All(ctx, &movements); err != nil {
		return nil, 0, fmt.Errorf("failed to decode movements: %w", err)
	}
	return movements, total, nil
}
