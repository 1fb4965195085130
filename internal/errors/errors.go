// Package errors defines structured error types shared by the store and the API.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode identifies a class of failure independently of its message.
type ErrorCode string

const (
	// ErrValidationFailed is returned when a record or draft is malformed.
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrMissingField is returned when a required field is empty.
	ErrMissingField ErrorCode = "MISSING_FIELD"
	// ErrInvalidFormat is returned when a field cannot be parsed.
	ErrInvalidFormat ErrorCode = "INVALID_FORMAT"

	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrConflict is returned when a record id is already taken.
	ErrConflict ErrorCode = "CONFLICT"

	// ErrCapacityExceeded is returned when a write would push the serialized
	// collection past the storage ceiling.
	ErrCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	// ErrCorruptData is returned when the persisted blob cannot be decoded.
	ErrCorruptData ErrorCode = "CORRUPT_DATA"
	// ErrStorageError is returned when the key-value backend fails.
	ErrStorageError ErrorCode = "STORAGE_ERROR"

	// ErrPayloadTooLarge is returned when a request body exceeds the upload limit.
	ErrPayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrRateLimited is returned when a client sends too many mutating requests.
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	// ErrInternal is returned when an unexpected error occurs.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorWithStatus is an error that carries an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Is reports whether target is an APIError with the same code, so that
// errors.Is(err, errors.NotFound("")) matches any not-found error.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.code == e.code
}

// HasCode reports whether err, or any error it wraps, carries code.
func HasCode(err error, code ErrorCode) bool {
	var ews ErrorWithStatus
	if !errors.As(err, &ews) {
		return false
	}
	return ews.Code() == code
}

// Predefined error constructors for common cases

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrValidationFailed, message)
}

// Validation creates a 400 error for a record that breaks a data model rule.
func Validation(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrMissingField, fmt.Sprintf("Missing required field: %s", fieldName)).
		WithDetail("field", fieldName)
}

// MissingFields creates a 400 Bad Request error listing several missing fields.
func MissingFields(message string, fields []string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrMissingField, fmt.Sprintf("%s (missing: %s)", message, strings.Join(fields, ", "))).
		WithDetail("fields", fields)
}

// InvalidFormat creates a 400 error for a field that cannot be parsed.
func InvalidFormat(fieldName string, err error) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrInvalidFormat, fmt.Sprintf("Invalid %s", fieldName)).
		WithDetail("field", fieldName).
		Wrap(err)
}

// Conflict creates a 409 Conflict error.
func Conflict(message string) *APIError {
	return NewAPIError(http.StatusConflict, ErrConflict, message)
}

// CapacityExceeded creates a 413 error for a write that would not fit.
func CapacityExceeded(size, capacity int) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrCapacityExceeded,
		"Storage quota would be exceeded. Please delete some images and try again.").
		WithDetail("size", size).
		WithDetail("capacity", capacity)
}

// CorruptData creates a 500 error for a persisted blob that cannot be decoded.
func CorruptData(key string, err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrCorruptData, fmt.Sprintf("stored collection %q is corrupt", key)).
		WithDetail("key", key).
		Wrap(err)
}

// Storage creates a 500 error wrapping a backend failure.
func Storage(op string, err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrStorageError, fmt.Sprintf("failed to %s", op)).Wrap(err)
}

// PayloadTooLarge creates a 413 error for a request body over limit bytes.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrPayloadTooLarge, fmt.Sprintf("Request body exceeds %d bytes", limit)).
		WithDetail("limit", limit)
}

// RateLimited creates a 429 Too Many Requests error.
func RateLimited(retryAfter int) *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrRateLimited, "Too many requests").
		WithDetail("retry_after", retryAfter)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}
