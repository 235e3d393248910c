package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/wms-platform/inventory-ledger/internal/domain"
)

// LocationRepository is an in-memory Location Registry
type LocationRepository struct {
	mu        sync.RWMutex
	locations map[string]*domain.Location
}

// NewLocationRepository creates a registry holding the given locations
func NewLocationRepository(locations ...*domain.Location) *LocationRepository {
	repo := &LocationRepository{locations: make(map[string]*domain.Location)}
	for _, l := range locations {
		c := *l
		repo.locations[l.ID] = &c
	}
	return repo
}

func (r *LocationRepository) Save(ctx context.Context, location *domain.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *location
	r.locations[location.ID] = &c
	return nil
}

func (r *LocationRepository) FindByID(ctx context.Context, id string) (*domain.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.locations[id]
	if !ok {
		return nil, nil
	}
	c := *l
	return &c, nil
}

func (r *LocationRepository) FindAll(ctx context.Context) ([]*domain.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Location, 0, len(r.locations))
	for _, l := range r.locations {
		c := *l
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}
