package application

import (
	"context"

	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/pkg/api"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
)

// LocationService is the admin surface of the Location Registry
type LocationService struct {
	repo   domain.LocationRepository
	logger *logging.Logger
}

// NewLocationService creates a new LocationService
func NewLocationService(repo domain.LocationRepository, logger *logging.Logger) *LocationService {
	return &LocationService{repo: repo, logger: logger}
}

// ListLocations returns every location, active or not
func (s *LocationService) ListLocations(ctx context.Context) ([]LocationDTO, error) {
	locations, err := s.repo.FindAll(ctx)
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to list locations", "error", err)
		return nil, errors.ErrInternal("").Wrap(err)
	}

	dtos := make([]LocationDTO, 0, len(locations))
	for _, l := range locations {
		dtos = append(dtos, ToLocationDTO(l))
	}
	return dtos, nil
}

// GetLocation returns one location or RESOURCE_NOT_FOUND
func (s *LocationService) GetLocation(ctx context.Context, id string) (*LocationDTO, error) {
	location, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to get location", "locationId", id, "error", err)
		return nil, errors.ErrInternal("").Wrap(err)
	}
	if location == nil {
		return nil, errors.ErrNotFoundWithID("location", id)
	}

	dto := ToLocationDTO(location)
	return &dto, nil
}

// UpsertLocation creates a location or updates its name and active flag
func (s *LocationService) UpsertLocation(ctx context.Context, cmd UpsertLocationCommand) (*LocationDTO, error) {
	if appErr := api.ValidateStruct(cmd); appErr != nil {
		return nil, appErr
	}

	location, err := s.repo.FindByID(ctx, cmd.ID)
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to get location", "locationId", cmd.ID, "error", err)
		return nil, errors.ErrInternal("").Wrap(err)
	}

	action := "update"
	if location == nil {
		location = domain.NewLocation(cmd.ID, cmd.Name)
		action = "create"
	} else if location.Name != cmd.Name {
		location.Rename(cmd.Name)
	}
	if cmd.Active != nil && location.Active != *cmd.Active {
		location.SetActive(*cmd.Active)
	}

	if err := s.repo.Save(ctx, location); err != nil {
		s.logger.WithContext(ctx).Error("Failed to save location", "locationId", cmd.ID, "error", err)
		return nil, errors.ErrInternal("").Wrap(err)
	}

	s.logger.Audit(ctx, action, "location", location.ID, logging.ActorIDFromContext(ctx), map[string]any{
		"name":   location.Name,
		"active": location.Active,
	})

	dto := ToLocationDTO(location)
	return &dto, nil
}
