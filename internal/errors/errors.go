// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrQueueClosed     = errors.New("storage queue is closed")
	ErrObjectTooLarge  = errors.New("event exceeds maximum object size")
	ErrNoWritableFile  = errors.New("no writable file available")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrUnknownSite     = errors.New("unknown intake site")
	ErrNoEvents        = errors.New("no events to upload")
	ErrWriterClosed    = errors.New("archive writer is closed")
	ErrPublisherClosed = errors.New("telemetry publisher is closed")
	ErrConnectionLost  = errors.New("connection lost")
)

// ValidationError represents an event validation failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field=%s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match validation failures with ErrInvalidEvent.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidEvent
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DecodingError is returned when a batch or one of its events cannot be
// decoded into a request payload. Value holds the offending input.
type DecodingError struct {
	Value string
	Err   error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decoding error: value=%q: %v", truncate(e.Value, 64), e.Err)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// SynchronizationError represents a failed network time query.
type SynchronizationError struct {
	Server string
	Err    error
}

func (e *SynchronizationError) Error() string {
	return fmt.Sprintf("time synchronization error: server=%s: %v", e.Server, e.Err)
}

func (e *SynchronizationError) Unwrap() error {
	return e.Err
}

// ConfigurationError represents an invalid configured value, such as an
// unsupported source tag or intake site.
type ConfigurationError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: field=%s value=%q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("configuration error: field=%s value=%q", e.Field, e.Value)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// StatusError is returned by the upload transport for non-2xx responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload rejected: status=%d url=%s", e.StatusCode, e.URL)
}

// IsRetryable reports whether the intake may accept the same request later.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking specific error types and sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	// Decoding and configuration failures never succeed on retry.
	var decodingErr *DecodingError
	if errors.As(err, &decodingErr) {
		return false
	}
	var configErr *ConfigurationError
	if errors.As(err, &configErr) {
		return false
	}

	var syncErr *SynchronizationError
	if errors.As(err, &syncErr) {
		return true
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
