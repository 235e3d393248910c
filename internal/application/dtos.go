package application

import "time"

// StockRecordDTO is a stock record in responses
type StockRecordDTO struct {
	VariantID  string    `json:"variantId"`
	LocationID string    `json:"locationId"`
	Quantity   int       `json:"quantity"`
	Reserved   int       `json:"reserved"`
	Available  int       `json:"available"`
	Minimum    int       `json:"minimum"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MovementDTO is a movement in responses and event payloads
type MovementDTO struct {
	ID             string    `json:"id"`
	VariantID      string    `json:"variantId"`
	LocationID     string    `json:"locationId"`
	OperationType  string    `json:"operationType"`
	Quantity       int       `json:"quantity"`
	Delta          int       `json:"delta"`
	ReservedDelta  int       `json:"reservedDelta"`
	FromLocationID *string   `json:"fromLocationId,omitempty"`
	ToLocationID   *string   `json:"toLocationId,omitempty"`
	QuantityAfter  int       `json:"quantityAfter"`
	ReservedAfter  int       `json:"reservedAfter"`
	Reference      *string   `json:"reference,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedBy      *string   `json:"createdBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// LedgerResultDTO acknowledges a committed ledger operation with the post-commit
// rows and the movements written
type LedgerResultDTO struct {
	Records   []StockRecordDTO `json:"records"`
	Movements []MovementDTO    `json:"movements"`

	lowStock int
}

// AvailableStockDTO is the result of getTotalAvailableStock
type AvailableStockDTO struct {
	VariantID string `json:"variantId"`
	Available int    `json:"available"`
}

// LocationDTO is a location in responses
type LocationDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
