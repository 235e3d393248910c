package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/wms-platform/inventory-ledger/internal/domain"
)

// SQLSTATE codes that signal contention
const (
	codeLockNotAvailable     pq.ErrorCode = "55P03"
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
	codeUniqueViolation      pq.ErrorCode = "23505"
	codeQueryCanceled        pq.ErrorCode = "57014"
)

// IsContention reports whether err came from a lock wait or a concurrent writer
func IsContention(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
		return true
	}
	return false
}

func translateError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var ledgerErr *domain.LedgerError
	if errors.As(err, &ledgerErr) || errors.Is(err, domain.ErrConcurrencyConflict) {
		return err
	}
	if IsContention(err) {
		return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
	}

	// lib/pq cancels the running statement when ctx expires
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeQueryCanceled && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
	}
	return err
}
