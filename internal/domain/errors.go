package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals a malformed request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrTransientProvider signals a retryable embedding provider failure.
	ErrTransientProvider = errors.New("transient provider error")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrPermanentInput signals content that can never be embedded.
	ErrPermanentInput = errors.New("permanent input error")
	// ErrPersistence signals a vector or metadata store write failure.
	ErrPersistence = errors.New("persistence error")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrAllPathsFailed signals that every retrieval path of a strict query failed.
	ErrAllPathsFailed = errors.New("all retrieval paths failed")
)

// TransientProviderError is a rate limit, timeout or transient network failure.
// RetryAfter is the provider's hint, zero when it gave none.
type TransientProviderError struct {
	RateLimited bool
	RetryAfter  time.Duration
	Err         error
}

func (e *TransientProviderError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("%s: %v", ErrRateLimited.Error(), e.Err)
	}
	return fmt.Sprintf("%s: %v", ErrTransientProvider.Error(), e.Err)
}

// Is lets errors.Is match both ErrTransientProvider and, for throttling, ErrRateLimited.
func (e *TransientProviderError) Is(target error) bool {
	if target == ErrTransientProvider {
		return true
	}
	return e.RateLimited && target == ErrRateLimited
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// PermanentInputError is empty or unembeddable content. Never retried.
type PermanentInputError struct {
	Reason string
}

func (e *PermanentInputError) Error() string {
	return ErrPermanentInput.Error() + ": " + e.Reason
}

func (e *PermanentInputError) Unwrap() error { return ErrPermanentInput }

// NewPermanentInput creates a PermanentInputError.
func NewPermanentInput(format string, args ...any) error {
	return &PermanentInputError{Reason: fmt.Sprintf(format, args...)}
}

// PersistenceError is a vector-store or metadata-store write failure.
type PersistenceError struct {
	Namespace string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s (namespace %s): %v", ErrPersistence.Error(), e.Namespace, e.Err)
}

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth another attempt against the provider.
// A dimension mismatch is a configuration error and never clears on retry.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrPermanentInput) || errors.Is(err, ErrVectorDimMismatch) {
		return false
	}
	return true
}
