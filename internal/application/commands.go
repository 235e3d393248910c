package application

import (
	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/pkg/api"
)

// MovementOptionsInput carries the optional audit fields accepted by every mutating command
type MovementOptionsInput struct {
	Reference *string `json:"reference,omitempty" validate:"omitempty,max=256"`
	Notes     *string `json:"notes,omitempty" validate:"omitempty,max=1024"`
	CreatedBy *string `json:"createdBy,omitempty" validate:"omitempty,max=128"`
}

func (o MovementOptionsInput) toDomain() domain.MovementOptions {
	return domain.MovementOptions{
		Reference: o.Reference,
		Notes:     o.Notes,
		CreatedBy: o.CreatedBy,
	}
}

// ReserveCommand promises stock to an order. An empty LocationID lets the ledger pick one.
type ReserveCommand struct {
	VariantID  string `json:"variantId" validate:"required,notblank,max=128"`
	LocationID string `json:"locationId,omitempty" validate:"omitempty,notblank,max=128"`
	Quantity   int    `json:"quantity" validate:"gt=0,lte=2147483647"`
	MovementOptionsInput
}

// ReleaseCommand returns reserved stock to available
type ReleaseCommand struct {
	VariantID  string `json:"variantId" validate:"required,notblank,max=128"`
	LocationID string `json:"locationId" validate:"required,notblank,max=128"`
	Quantity   int    `json:"quantity" validate:"gt=0,lte=2147483647"`
	MovementOptionsInput
}

// ReceiveCommand books goods-in at a location
type ReceiveCommand struct {
	VariantID  string `json:"variantId" validate:"required,notblank,max=128"`
	LocationID string `json:"locationId" validate:"required,notblank,max=128"`
	Quantity   int    `json:"quantity" validate:"gt=0,lte=2147483647"`
	MovementOptionsInput
}

// ShipCommand consumes a reservation and removes the goods
type ShipCommand struct {
	VariantID  string `json:"variantId" validate:"required,notblank,max=128"`
	LocationID string `json:"locationId" validate:"required,notblank,max=128"`
	Quantity   int    `json:"quantity" validate:"gt=0,lte=2147483647"`
	MovementOptionsInput
}

// TransferCommand moves available stock between two locations
type TransferCommand struct {
	VariantID      string `json:"variantId" validate:"required,notblank,max=128"`
	FromLocationID string `json:"fromLocationId" validate:"required,notblank,max=128"`
	ToLocationID   string `json:"toLocationId" validate:"required,notblank,max=128,nefield=FromLocationID"`
	Quantity       int    `json:"quantity" validate:"gt=0,lte=2147483647"`
	MovementOptionsInput
}

// AdjustCommand sets on-hand quantity to an absolute count
type AdjustCommand struct {
	VariantID   string `json:"variantId" validate:"required,notblank,max=128"`
	LocationID  string `json:"locationId" validate:"required,notblank,max=128"`
	NewQuantity *int   `json:"newQuantity" validate:"required,gte=0,lte=2147483647"`
	MovementOptionsInput
}

// SetMinimumStockCommand changes the reorder threshold of a stock record
type SetMinimumStockCommand struct {
	VariantID  string `json:"variantId" validate:"required,notblank,max=128"`
	LocationID string `json:"locationId" validate:"required,notblank,max=128"`
	Minimum    *int   `json:"minimum" validate:"required,gte=0,lte=2147483647"`
}

// GetStockQuery lists a variant's stock records, optionally for one location
type GetStockQuery struct {
	VariantID  string `json:"variantId" validate:"required,notblank,max=128"`
	LocationID string `json:"locationId,omitempty" validate:"omitempty,max=128"`
}

// GetLowStockQuery lists records below threshold, or below their own minimum when Threshold is nil
type GetLowStockQuery struct {
	Threshold *int `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=2147483647"`
	Page      api.PageRequest
}

// GetMovementHistoryQuery pages through a variant's movements, newest first
type GetMovementHistoryQuery struct {
	VariantID string `json:"variantId" validate:"required,notblank,max=128"`
	Page      api.PageRequest
}

// UpsertLocationCommand creates or updates a location in the registry
type UpsertLocationCommand struct {
	ID     string `json:"id" validate:"required,notblank,max=128"`
	Name   string `json:"name" validate:"required,notblank,max=256"`
	Active *bool  `json:"active,omitempty"`
}
