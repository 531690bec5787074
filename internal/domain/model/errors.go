package model

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimitExceeded is returned when admission control denies processing.
	// Callers own retry and backoff.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrStorageUnavailable wraps persistence timeouts and connection failures.
	// Retrying the whole Process call is safe.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidComment is returned for comments that cannot be processed, such
	// as those missing an ID.
	ErrInvalidComment = errors.New("invalid comment")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("configuration error")

	// ErrDispatchFailure is matched by every *DispatchError.
	ErrDispatchFailure = errors.New("dispatch failure")
)

// ConfigurationError reports invalid startup configuration. It is fatal.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrConfiguration) match any ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// DispatchError reports that the external sink rejected a reply after the
// record was persisted. The record stays persisted; only delivery needs a retry.
type DispatchError struct {
	CommentID string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch reply for comment %s: %v", e.CommentID, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *DispatchError) Unwrap() []error {
	return []error{ErrDispatchFailure, e.Err}
}
