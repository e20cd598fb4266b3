package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Input and lookup errors
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("short url not found")

	// Short-code generation errors
	ErrCapacityExceeded = errors.New("short code capacity exceeded")
	ErrExhausted        = errors.New("short code generation attempts exhausted")

	// Backend availability errors
	ErrStorageUnavailable    = errors.New("url store unavailable")
	ErrCacheUnavailable      = errors.New("cache unavailable")
	ErrQueueUnavailable      = errors.New("queue unavailable")
	ErrStorageBackendFailure = errors.New("hit storage backend failure")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")
)

// ServiceError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type ServiceError struct {
	Op      string // Operation that failed (e.g., "urlstore.GetByCode")
	Kind    string // Error kind (e.g., "cache", "queue", "storage")
	Code    string // Optional short code or entity id involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *ServiceError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.Code != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.Code, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError
func NewServiceError(op, kind string, err error) *ServiceError {
	return &ServiceError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is retryable
// Retryable errors are typically transient backend availability issues
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrCacheUnavailable) ||
		errors.Is(err, ErrQueueUnavailable) ||
		errors.Is(err, ErrStorageBackendFailure)
}

// IsNotFound checks if an error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if an error was caused by a bad request
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
