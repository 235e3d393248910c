package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/inventory-ledger/internal/domain"
)

// LocationsCollection holds the Location Registry
const LocationsCollection = "locations"

// LocationRepository implements domain.LocationRepository
type LocationRepository struct {
	collection *mongo.Collection
}

// NewLocationRepository creates a new LocationRepository
func NewLocationRepository(db *mongo.Database) *LocationRepository {
	return &LocationRepository{collection: db.Collection(LocationsCollection)}
}

// EnsureIndexes creates the active-flag index
func (r *LocationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "active", Value: 1}},
		Options: options.Index().SetName("active"),
	})
	if err != nil {
		return fmt.Errorf("failed to create location indexes: %w", err)
	}
	return nil
}

func (r *LocationRepository) Save(ctx context.Context, location *domain.Location) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": location.ID}, location, opts); err != nil {
		return fmt.Errorf("failed to save location: %w", err)
	}
	return nil
}

func (r *LocationRepository) FindByID(ctx context.Context, id string) (*domain.Location, error) {
	var location domain.Location
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&location); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find location: %w", err)
	}
	return &location, nil
}

func (r *LocationRepository) FindAll(ctx context.Context) ([]*domain.Location, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find locations: %w", err)
	}
	defer cursor.Close(ctx)

	var locations []*domain.Location
	if err := cursor.All(ctx, &locations); err != nil {
		return nil, fmt.Errorf("failed to decode locations: %w", err)
	}
	return locations, nil
}
