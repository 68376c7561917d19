package order

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes order errors. Each kind maps to one HTTP status.
type ErrorKind string

const (
	// KindValidation: missing or malformed input. No write happened.
	KindValidation ErrorKind = "validation"

	// KindNotFound: the key is absent. Expected, not a fault.
	KindNotFound ErrorKind = "not_found"

	// KindStorage: the backing store failed or rejected the operation.
	KindStorage ErrorKind = "storage"
)

// Error is the error type returned by order stores and the intake service.
type Error struct {
	Kind ErrorKind

	// Message is safe to show to a client.
	Message string

	// Key is the order_id involved, when known.
	Key string

	// Missing lists absent required fields (validation only).
	Missing []string

	// Err is the underlying cause (storage only).
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Missing, ", "))
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " (order_id=%s)", e.Key)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error.
func NewValidationError(message string, missing ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Missing: missing}
}

// NewNotFoundError creates a not-found error for key.
func NewNotFoundError(key string) *Error {
	return &Error{Kind: KindNotFound, Message: "order not found", Key: key}
}

// NewStorageError wraps a backing store failure.
func NewStorageError(key string, err error) *Error {
	return &Error{Kind: KindStorage, Message: "storage error", Key: key, Err: err}
}

// KindOf returns the kind of err, or "" if err is not an *Error.
// Uses errors.As so wrapped errors are recognized.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsStorage reports whether err is a storage error.
func IsStorage(err error) bool { return KindOf(err) == KindStorage }
