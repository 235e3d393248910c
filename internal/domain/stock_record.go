package domain

import (
	"fmt"
	"math"
	"time"
)

// MaxQuantity bounds every quantity, reservation and minimum a record can hold
const MaxQuantity = math.MaxInt32

// StockRecord is the on-hand and reserved quantity of one variant at one location.
//
// Invariants: 0 <= Reserved <= Quantity <= MaxQuantity, 0 <= Minimum <= MaxQuantity.
type StockRecord struct {
	VariantID  string    `bson:"variantId" json:"variantId" db:"variant_id"`
	LocationID string    `bson:"locationId" json:"locationId" db:"location_id"`
	Quantity   int       `bson:"quantity" json:"quantity" db:"quantity"`
	Reserved   int       `bson:"reserved" json:"reserved" db:"reserved"`
	Minimum    int       `bson:"minimum" json:"minimum" db:"minimum"`
	Version    int64     `bson:"version" json:"version" db:"version"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updatedAt" db:"updated_at"`
}

// NewStockRecord creates an empty record. Stores call it when a pair is first touched.
func NewStockRecord(variantID, locationID string) *StockRecord {
	now := time.Now().UTC()
	return &StockRecord{
		VariantID:  variantID,
		LocationID: locationID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Available is on-hand minus reserved
func (r *StockRecord) Available() int {
	return r.Quantity - r.Reserved
}

// IsLowStock compares quantity against threshold, or against Minimum when threshold is nil
func (r *StockRecord) IsLowStock(threshold *int) bool {
	if threshold != nil {
		return r.Quantity < *threshold
	}
	return r.Quantity < r.Minimum
}

// Reserve promises quantity to an order
func (r *StockRecord) Reserve(quantity int, opts MovementOptions) (*Movement, error) {
	if !validQuantity(quantity) {
		return nil, newLedgerError(ErrInvalidQuantity, MovementReserve, r, quantity, r.Available(), "")
	}
	if r.Available() < quantity {
		return nil, newLedgerError(ErrInsufficientStock, MovementReserve, r, quantity, r.Available(), "")
	}

	r.Reserved += quantity
	r.touch()

	m := newMovement(MovementReserve, r, quantity, 0, quantity, opts)
	m.FromLocationID = strPtr(r.LocationID)
	return m, nil
}

// Release returns reserved quantity to available
func (r *StockRecord) Release(quantity int, opts MovementOptions) (*Movement, error) {
	if !validQuantity(quantity) {
		return nil, newLedgerError(ErrInvalidQuantity, MovementRelease, r, quantity, r.Reserved, "")
	}
	if quantity > r.Reserved {
		return nil, newLedgerError(ErrInvalidMovement, MovementRelease, r, quantity, r.Reserved,
			fmt.Sprintf("release of %d exceeds reserved %d", quantity, r.Reserved))
	}

	r.Reserved -= quantity
	r.touch()

	m := newMovement(MovementRelease, r, quantity, 0, -quantity, opts)
	m.FromLocationID = strPtr(r.LocationID)
	return m, nil
}

// Receive adds goods-in to on-hand quantity
func (r *StockRecord) Receive(quantity int, opts MovementOptions) (*Movement, error) {
	if !validQuantity(quantity) {
		return nil, newLedgerError(ErrInvalidQuantity, MovementReceive, r, quantity, r.Available(), "")
	}
	if r.Quantity > MaxQuantity-quantity {
		return nil, newLedgerError(ErrInvalidMovement, MovementReceive, r, quantity, r.Quantity,
			fmt.Sprintf("receiving %d onto %d exceeds the maximum quantity %d", quantity, r.Quantity, MaxQuantity))
	}

	r.Quantity += quantity
	r.touch()

	m := newMovement(MovementReceive, r, quantity, quantity, 0, opts)
	m.ToLocationID = strPtr(r.LocationID)
	return m, nil
}

// Ship consumes a reservation and removes the goods from on-hand quantity
func (r *StockRecord) Ship(quantity int, opts MovementOptions) (*Movement, error) {
	if !validQuantity(quantity) {
		return nil, newLedgerError(ErrInvalidQuantity, MovementShip, r, quantity, r.Quantity, "")
	}
	if r.Quantity < quantity {
		return nil, newLedgerError(ErrInsufficientStock, MovementShip, r, quantity, r.Quantity,
			fmt.Sprintf("on-hand %d is less than %d", r.Quantity, quantity))
	}
	if r.Reserved < quantity {
		return nil, newLedgerError(ErrInvalidMovement, MovementShip, r, quantity, r.Reserved,
			fmt.Sprintf("reserved %d is less than %d, stock must be reserved before shipping", r.Reserved, quantity))
	}

	r.Quantity -= quantity
	r.Reserved -= quantity
	r.touch()

	m := newMovement(MovementShip, r, quantity, -quantity, -quantity, opts)
	m.FromLocationID = strPtr(r.LocationID)
	return m, nil
}

// Adjust sets on-hand quantity to an absolute count, e.g. after a stock take.
// The movement records newQuantity - previous, which may be zero.
func (r *StockRecord) Adjust(newQuantity int, opts MovementOptions) (*Movement, error) {
	if newQuantity < 0 || newQuantity > MaxQuantity {
		return nil, newLedgerError(ErrInvalidQuantity, MovementAdjust, r, newQuantity, r.Quantity, "")
	}
	if newQuantity < r.Reserved {
		return nil, newLedgerError(ErrInvalidMovement, MovementAdjust, r, newQuantity, r.Reserved,
			fmt.Sprintf("new quantity %d is below reserved %d, release the reservation first", newQuantity, r.Reserved))
	}

	delta := newQuantity - r.Quantity
	r.Quantity = newQuantity
	r.touch()

	return newMovement(MovementAdjust, r, abs(delta), delta, 0, opts), nil
}

// SetMinimum changes the reorder threshold. It is metadata only and produces no movement.
func (r *StockRecord) SetMinimum(minimum int) error {
	if minimum < 0 || minimum > MaxQuantity {
		return newLedgerError(ErrInvalidQuantity, OpSetMinimum, r, minimum, r.Minimum, "")
	}
	r.Minimum = minimum
	r.touch()
	return nil
}

// Transfer moves available stock from r to dest. Reservations stay where they are.
// Both movements carry opts.Reference, which the caller must set.
func (r *StockRecord) Transfer(dest *StockRecord, quantity int, opts MovementOptions) (out, in *Movement, err error) {
	if dest.VariantID != r.VariantID || dest.LocationID == r.LocationID {
		return nil, nil, newLedgerError(ErrInvalidMovement, OpTransfer, r, quantity, r.Available(),
			"source and destination must be different locations of the same variant")
	}
	if !validQuantity(quantity) {
		return nil, nil, newLedgerError(ErrInvalidQuantity, OpTransfer, r, quantity, r.Available(), "")
	}
	if r.Available() < quantity {
		return nil, nil, newLedgerError(ErrInsufficientStock, OpTransfer, r, quantity, r.Available(),
			fmt.Sprintf("available %d is less than %d", r.Available(), quantity))
	}
	if dest.Quantity > MaxQuantity-quantity {
		return nil, nil, newLedgerError(ErrInvalidMovement, OpTransfer, dest, quantity, dest.Quantity,
			fmt.Sprintf("transferring %d onto %d exceeds the maximum quantity %d", quantity, dest.Quantity, MaxQuantity))
	}

	r.Quantity -= quantity
	r.touch()
	dest.Quantity += quantity
	dest.UpdatedAt = r.UpdatedAt

	from, to := strPtr(r.LocationID), strPtr(dest.LocationID)

	out = newMovement(MovementTransferOut, r, quantity, -quantity, 0, opts)
	out.FromLocationID, out.ToLocationID = from, to

	in = newMovement(MovementTransferIn, dest, quantity, quantity, 0, opts)
	in.FromLocationID, in.ToLocationID = from, to

	return out, in, nil
}

// CrossedBelowMinimum reports whether a change from previousQuantity took the record under its minimum
func (r *StockRecord) CrossedBelowMinimum(previousQuantity int) bool {
	return r.Minimum > 0 && previousQuantity >= r.Minimum && r.Quantity < r.Minimum
}

// Validate checks the record invariants
func (r *StockRecord) Validate() error {
	if r.Quantity < 0 || r.Quantity > MaxQuantity || r.Reserved < 0 || r.Reserved > r.Quantity ||
		r.Minimum < 0 || r.Minimum > MaxQuantity {
		return fmt.Errorf("stock record %s/%s violates invariants: quantity=%d reserved=%d minimum=%d",
			r.VariantID, r.LocationID, r.Quantity, r.Reserved, r.Minimum)
	}
	return nil
}

// Clone returns a copy that shares no state with r
func (r *StockRecord) Clone() *StockRecord {
	c := *r
	return &c
}

func validQuantity(quantity int) bool {
	return quantity > 0 && quantity <= MaxQuantity
}

func (r *StockRecord) touch() {
	r.UpdatedAt = time.Now().UTC()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
