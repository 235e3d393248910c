package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MovementType identifies the operation that produced a movement
type MovementType string

const (
	MovementReserve     MovementType = "RESERVE"
	MovementRelease     MovementType = "RELEASE"
	MovementReceive     MovementType = "RECEIVE"
	MovementShip        MovementType = "SHIP"
	MovementTransferOut MovementType = "TRANSFER_OUT"
	MovementTransferIn  MovementType = "TRANSFER_IN"
	MovementAdjust      MovementType = "ADJUST"

	// OpSetMinimum labels errors from setMinimumStock. It never appears on a Movement.
	OpSetMinimum MovementType = "SET_MINIMUM"
	// OpTransfer labels errors from a transfer before either side is written.
	OpTransfer MovementType = "TRANSFER"
)

// IsValid checks if the movement type can be stored
func (t MovementType) IsValid() bool {
	switch t {
	case MovementReserve, MovementRelease, MovementReceive, MovementShip,
		MovementTransferOut, MovementTransferIn, MovementAdjust:
		return true
	default:
		return false
	}
}

// Slug returns the lowercase dashed form used in event types, e.g. "transfer-out"
func (t MovementType) Slug() string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", "-")
}

// MovementOptions holds the optional audit fields of a ledger request
type MovementOptions struct {
	Reference *string
	Notes     *string
	CreatedBy *string
}

// WithReference returns a copy of o whose reference is ref
func (o MovementOptions) WithReference(ref string) MovementOptions {
	o.Reference = &ref
	return o
}

// Movement is an immutable audit entry for one change to one stock record.
//
// Quantity is the magnitude of the change; the type implies direction.
// Delta is the signed change to on-hand quantity and ReservedDelta the signed
// change to reserved, so summing them over a record's history reproduces it.
type Movement struct {
	ID             string       `bson:"_id" json:"id" db:"id"`
	VariantID      string       `bson:"variantId" json:"variantId" db:"variant_id"`
	LocationID     string       `bson:"locationId" json:"locationId" db:"location_id"`
	Type           MovementType `bson:"operationType" json:"operationType" db:"operation_type"`
	Quantity       int          `bson:"quantity" json:"quantity" db:"quantity"`
	Delta          int          `bson:"delta" json:"delta" db:"delta"`
	ReservedDelta  int          `bson:"reservedDelta" json:"reservedDelta" db:"reserved_delta"`
	FromLocationID *string      `bson:"fromLocationId,omitempty" json:"fromLocationId,omitempty" db:"from_location_id"`
	ToLocationID   *string      `bson:"toLocationId,omitempty" json:"toLocationId,omitempty" db:"to_location_id"`
	QuantityAfter  int          `bson:"quantityAfter" json:"quantityAfter" db:"quantity_after"`
	ReservedAfter  int          `bson:"reservedAfter" json:"reservedAfter" db:"reserved_after"`
	Reference      *string      `bson:"reference,omitempty" json:"reference,omitempty" db:"reference"`
	Notes          *string      `bson:"notes,omitempty" json:"notes,omitempty" db:"notes"`
	CreatedBy      *string      `bson:"createdBy,omitempty" json:"createdBy,omitempty" db:"created_by"`
	CreatedAt      time.Time    `bson:"createdAt" json:"createdAt" db:"created_at"`
}

func newMovement(t MovementType, r *StockRecord, quantity, delta, reservedDelta int, opts MovementOptions) *Movement {
	return &Movement{
		ID:            newMovementID(),
		VariantID:     r.VariantID,
		LocationID:    r.LocationID,
		Type:          t,
		Quantity:      quantity,
		Delta:         delta,
		ReservedDelta: reservedDelta,
		QuantityAfter: r.Quantity,
		ReservedAfter: r.Reserved,
		Reference:     opts.Reference,
		Notes:         opts.Notes,
		CreatedBy:     opts.CreatedBy,
		CreatedAt:     r.UpdatedAt,
	}
}

// newMovementID returns a time-ordered id so that movements sharing a timestamp keep insertion order
func newMovementID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// NewTransferReference generates the reference shared by the two halves of a transfer
func NewTransferReference() string {
	return "TRF-" + uuid.New().String()
}

func strPtr(s string) *string {
	return &s
}
