package domain

import (
	"errors"
	"fmt"
)

// Ledger error kinds. Every failure returned by a ledger operation wraps exactly one of them.
var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidMovement     = errors.New("invalid movement")
	ErrInvalidLocation     = errors.New("invalid location")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrInvalidQuantity     = errors.New("invalid quantity")
)

// LedgerError carries the context of a rejected stock operation
type LedgerError struct {
	Op         MovementType
	VariantID  string
	LocationID string
	Requested  int
	Available  int
	Reason     string
	Err        error
}

func (e *LedgerError) Error() string {
	msg := fmt.Sprintf("%s variant=%s location=%s: %v", e.Op, e.VariantID, e.LocationID, e.Err)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func newLedgerError(kind error, op MovementType, r *StockRecord, requested, available int, reason string) *LedgerError {
	return &LedgerError{
		Op:         op,
		VariantID:  r.VariantID,
		LocationID: r.LocationID,
		Requested:  requested,
		Available:  available,
		Reason:     reason,
		Err:        kind,
	}
}

// NewInvalidLocationError reports an unknown or inactive location for a mutating operation
func NewInvalidLocationError(op MovementType, variantID, locationID string) *LedgerError {
	return &LedgerError{
		Op:         op,
		VariantID:  variantID,
		LocationID: locationID,
		Reason:     "location does not exist or is inactive",
		Err:        ErrInvalidLocation,
	}
}

// NewNoLocationError reports that no single location can satisfy a reservation
func NewNoLocationError(variantID string, requested int) *LedgerError {
	return &LedgerError{
		Op:        MovementReserve,
		VariantID: variantID,
		Requested: requested,
		Reason:    "no single location has enough available stock",
		Err:       ErrInsufficientStock,
	}
}

// IsRetryable reports whether err is transient contention that a caller may retry
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
