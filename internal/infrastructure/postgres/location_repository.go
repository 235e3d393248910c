package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/wms-platform/inventory-ledger/internal/domain"
)

// LocationRepository implements domain.LocationRepository on the locations table
type LocationRepository struct {
	db *sqlx.DB
}

// NewLocationRepository creates a new LocationRepository
func NewLocationRepository(db *sqlx.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

func (r *LocationRepository) Save(ctx context.Context, location *domain.Location) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO locations (id, name, active, created_at, updated_at)
		VALUES (:id, :name, :active, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`, location)
	if err != nil {
		return fmt.Errorf("failed to save location: %w", err)
	}
	return nil
}

func (r *LocationRepository) FindByID(ctx context.Context, id string) (*domain.Location, error) {
	var location domain.Location
	err := r.db.GetContext(ctx, &location,
		`SELECT id, name, active, created_at, updated_at FROM locations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find location: %w", err)
	}
	return &location, nil
}

func (r *LocationRepository) FindAll(ctx context.Context) ([]*domain.Location, error) {
	var locations []*domain.Location
	err := r.db.SelectContext(ctx, &locations,
		`SELECT id, name, active, created_at, updated_at FROM locations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to find locations: %w", err)
	}
	return locations, nil
}
