package idempotency

import "errors"

var (
	ErrKeyRequired             = errors.New("idempotency key is required")
	ErrKeyInvalid              = errors.New("idempotency key may only contain letters, digits, '-' and '_'")
	ErrKeyTooLong              = errors.New("idempotency key is too long")
	ErrNotFound                = errors.New("idempotency key not found")
	ErrMessageAlreadyProcessed = errors.New("message already processed")
)
