package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes exposed at the API boundary. They are stable and must not be renamed.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeInvalidLocation     = "INVALID_LOCATION"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeInvalidMovement     = "INVALID_MOVEMENT"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeNotFound            = "RESOURCE_NOT_FOUND"
	CodeBadRequest          = "BAD_REQUEST"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"

	CodeIdempotencyKeyInvalid    = "IDEMPOTENCY_KEY_INVALID"
	CodeIdempotencyKeyMismatch   = "IDEMPOTENCY_KEY_MISMATCH"
	CodeIdempotencyKeyInProgress = "IDEMPOTENCY_KEY_IN_PROGRESS"
)

// AppError represents an application error with HTTP status and error code
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a caller may retry the same request with backoff.
// Only transient contention qualifies.
func (e *AppError) Retryable() bool {
	return e.Code == CodeConcurrencyConflict
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap wraps an existing error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewAppError creates a new AppError
func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrValidationWithFields creates a validation error with one detail per failed field
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	return ErrValidation(message).WithDetails(fields)
}

// ErrInvalidLocation is returned when a mutating operation references an unknown or inactive location
func ErrInvalidLocation(locationID string) *AppError {
	return NewAppError(CodeInvalidLocation, fmt.Sprintf("location %q does not exist or is inactive", locationID), http.StatusUnprocessableEntity).
		WithDetail("locationId", locationID)
}

// ErrInsufficientStock is returned when the requested quantity cannot be covered
func ErrInsufficientStock(message string) *AppError {
	return NewAppError(CodeInsufficientStock, message, http.StatusConflict)
}

// ErrInvalidMovement is returned for operation-specific semantic violations
func ErrInvalidMovement(message string) *AppError {
	return NewAppError(CodeInvalidMovement, message, http.StatusUnprocessableEntity)
}

// ErrConcurrencyConflict is returned on lock timeout or write contention
func ErrConcurrencyConflict(message string) *AppError {
	if message == "" {
		message = "stock record is busy, retry the request"
	}
	return NewAppError(CodeConcurrencyConflict, message, http.StatusConflict).WithDetail("retryable", "true")
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return NewAppError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// ErrNotFoundWithID creates a not found error with ID
func ErrNotFoundWithID(resource, id string) *AppError {
	return ErrNotFound(resource).WithDetail("id", id)
}

// ErrBadRequest creates a bad request error
func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

// ErrInternal creates an internal error. The message never carries storage detail.
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError)
}

// ErrServiceUnavailable creates a service unavailable error
func ErrServiceUnavailable(service string) *AppError {
	return NewAppError(CodeServiceUnavailable, fmt.Sprintf("%s is temporarily unavailable", service), http.StatusServiceUnavailable)
}

// ErrIdempotencyKeyInvalid is returned for a malformed Idempotency-Key header
func ErrIdempotencyKeyInvalid(reason string) *AppError {
	return NewAppError(CodeIdempotencyKeyInvalid, "invalid Idempotency-Key: "+reason, http.StatusBadRequest)
}

// ErrIdempotencyKeyMismatch is returned when a key is reused with a different request body
func ErrIdempotencyKeyMismatch() *AppError {
	return NewAppError(CodeIdempotencyKeyMismatch,
		"request differs from the original request sent with this Idempotency-Key", http.StatusUnprocessableEntity)
}

// ErrIdempotencyKeyInProgress is returned while the original request for a key is still running
func ErrIdempotencyKeyInProgress() *AppError {
	return NewAppError(CodeIdempotencyKeyInProgress,
		"a request with this Idempotency-Key is still being processed", http.StatusConflict)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying the given code
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// FromError converts a standard error to an AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	return ErrInternal("").Wrap(err)
}
