package core

import (
	"errors"
	"fmt"
	"testing"
)

// Test IsRetryable function
func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "ErrStorageUnavailable is retryable",
			err:      ErrStorageUnavailable,
			expected: true,
		},
		{
			name:     "ErrCacheUnavailable is retryable",
			err:      ErrCacheUnavailable,
			expected: true,
		},
		{
			name:     "ErrQueueUnavailable is retryable",
			err:      ErrQueueUnavailable,
			expected: true,
		},
		{
			name:     "ErrStorageBackendFailure is retryable",
			err:      ErrStorageBackendFailure,
			expected: true,
		},
		{
			name:     "wrapped retryable error is retryable",
			err:      fmt.Errorf("flush failed: %w", ErrStorageBackendFailure),
			expected: true,
		},
		{
			name:     "ErrNotFound is not retryable",
			err:      ErrNotFound,
			expected: false,
		},
		{
			name:     "ErrCapacityExceeded is not retryable",
			err:      ErrCapacityExceeded,
			expected: false,
		},
		{
			name:     "custom error is not retryable",
			err:      errors.New("custom error"),
			expected: false,
		},
		{
			name:     "nil error is not retryable",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

// Test IsNotFound and IsInvalidInput classification
func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		notFound     bool
		invalidInput bool
	}{
		{
			name:     "ErrNotFound is not found",
			err:      ErrNotFound,
			notFound: true,
		},
		{
			name:     "wrapped ErrNotFound is detected",
			err:      fmt.Errorf("lookup abc123: %w", ErrNotFound),
			notFound: true,
		},
		{
			name:     "ServiceError wrapping ErrNotFound is detected",
			err:      NewServiceError("urlstore.GetByCode", "storage", ErrNotFound),
			notFound: true,
		},
		{
			name:         "ErrInvalidInput is invalid input",
			err:          ErrInvalidInput,
			invalidInput: true,
		},
		{
			name:         "wrapped ErrInvalidInput is detected",
			err:          fmt.Errorf("parse url: %w", ErrInvalidInput),
			invalidInput: true,
		},
		{
			name: "unrelated error matches neither",
			err:  errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.notFound)
			}
			if got := IsInvalidInput(tt.err); got != tt.invalidInput {
				t.Errorf("IsInvalidInput(%v) = %v, want %v", tt.err, got, tt.invalidInput)
			}
		})
	}
}

// Test ServiceError formatting and unwrapping
func TestServiceError(t *testing.T) {
	t.Run("formats op and code", func(t *testing.T) {
		err := &ServiceError{
			Op:   "cache.Get",
			Kind: "cache",
			Code: "kh",
			Err:  ErrCacheUnavailable,
		}
		want := "cache.Get [kh]: cache unavailable"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("formats op without code", func(t *testing.T) {
		err := NewServiceError("queue.Publish", "queue", ErrQueueUnavailable)
		want := "queue.Publish: queue unavailable"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("falls back to message", func(t *testing.T) {
		err := &ServiceError{Kind: "config", Message: "port out of range"}
		if err.Error() != "port out of range" {
			t.Errorf("Error() = %q, want %q", err.Error(), "port out of range")
		}
	})

	t.Run("falls back to kind", func(t *testing.T) {
		err := &ServiceError{Kind: "storage"}
		if err.Error() != "storage error" {
			t.Errorf("Error() = %q, want %q", err.Error(), "storage error")
		}
	})

	t.Run("unwraps to sentinel", func(t *testing.T) {
		err := NewServiceError("urlstore.Deactivate", "storage", ErrNotFound)
		if !errors.Is(err, ErrNotFound) {
			t.Error("expected errors.Is(err, ErrNotFound) to hold")
		}
		var svcErr *ServiceError
		if !errors.As(err, &svcErr) {
			t.Error("expected errors.As to recover *ServiceError")
		}
	})
}
