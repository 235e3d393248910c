package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/wms-platform/inventory-ledger/internal/domain"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
)

// MapDomainError converts ledger and storage failures into the AppError taxonomy.
// Anything unrecognised becomes INTERNAL_ERROR with the cause kept for logging only.
func MapDomainError(err error) *errors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}

	var ledgerErr *domain.LedgerError
	hasContext := stderrors.As(err, &ledgerErr)

	switch {
	case stderrors.Is(err, domain.ErrInvalidQuantity):
		field := "quantity"
		switch {
		case hasContext && ledgerErr.Op == domain.MovementAdjust:
			field = "newQuantity"
		case hasContext && ledgerErr.Op == domain.OpSetMinimum:
			field = "minimum"
		}
		return errors.ErrValidationWithFields("validation failed", map[string]string{
			field: fmt.Sprintf("%s is out of range", field),
		}).Wrap(err)

	case stderrors.Is(err, domain.ErrInvalidLocation):
		locationID := ""
		if hasContext {
			locationID = ledgerErr.LocationID
		}
		return errors.ErrInvalidLocation(locationID).Wrap(err)

	case stderrors.Is(err, domain.ErrInsufficientStock):
		appErr := errors.ErrInsufficientStock(describe(ledgerErr, hasContext, "insufficient stock")).Wrap(err)
		if hasContext {
			addLedgerDetails(appErr, ledgerErr)
		}
		return appErr

	case stderrors.Is(err, domain.ErrInvalidMovement):
		appErr := errors.ErrInvalidMovement(describe(ledgerErr, hasContext, "invalid movement")).Wrap(err)
		if hasContext {
			addLedgerDetails(appErr, ledgerErr)
		}
		return appErr

	case stderrors.Is(err, domain.ErrConcurrencyConflict), stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrConcurrencyConflict("").Wrap(err)
	}

	return errors.ErrInternal("").Wrap(err)
}

func describe(ledgerErr *domain.LedgerError, hasContext bool, fallback string) string {
	if !hasContext {
		return fallback
	}
	if ledgerErr.Reason != "" {
		return ledgerErr.Reason
	}
	if ledgerErr.LocationID == "" {
		return fmt.Sprintf("%s for variant %s: requested %d", fallback, ledgerErr.VariantID, ledgerErr.Requested)
	}
	return fmt.Sprintf("%s for variant %s at %s: requested %d, available %d",
		fallback, ledgerErr.VariantID, ledgerErr.LocationID, ledgerErr.Requested, ledgerErr.Available)
}

func addLedgerDetails(appErr *errors.AppError, ledgerErr *domain.LedgerError) {
	appErr.WithDetail("variantId", ledgerErr.VariantID)
	if ledgerErr.LocationID != "" {
		appErr.WithDetail("locationId", ledgerErr.LocationID)
	}
	appErr.WithDetail("requested", strconv.Itoa(ledgerErr.Requested))
	if ledgerErr.LocationID != "" {
		appErr.WithDetail("available", strconv.Itoa(ledgerErr.Available))
	}
}
