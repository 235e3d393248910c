package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// Server error codes that signal contention rather than a fault
const (
	codeLockTimeout      = 24
	codeMaxTimeExpired   = 50
	codeWriteConflict    = 112
	codeDuplicateKey     = 11000
	labelTransientTxnErr = "TransientTransactionError"
)

// IsContention reports whether err was caused by a concurrent writer or a lock wait
// running out. Callers may retry the whole transaction.
func IsContention(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}

	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel(labelTransientTxnErr) {
		return true
	}

	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(codeWriteConflict) ||
			se.HasErrorCode(codeLockTimeout) ||
			se.HasErrorCode(codeMaxTimeExpired) ||
			se.HasErrorCode(codeDuplicateKey)
	}
	return false
}
