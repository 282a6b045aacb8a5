package domain

import (
	"context"
	"errors"
	"time"
)

// Common domain errors
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientSpace = errors.New("insufficient space")

	// Task lifecycle errors. All of them are caller bugs and are never retried.
	ErrInvalidState        = errors.New("invalid task state")
	ErrAlreadyStarted      = errors.New("task already started")
	ErrAlreadyCanceled     = errors.New("task already canceled")
	ErrAddAfterStart       = errors.New("cannot add a child after the task started")
	ErrSubscribeAfterStart = errors.New("cannot subscribe after the task started")

	// ErrCanceled is the cancellation-kind error returned by task bodies that
	// observed a cancellation request. It is swallowed, never reported.
	ErrCanceled = errors.New("task canceled")

	// Download errors
	ErrEmptyURL         = errors.New("download url is empty")
	ErrEmptyResource    = errors.New("resource is empty")
	ErrLengthMismatch   = errors.New("urls and paths must have the same length")
	ErrUnexpectedStatus = errors.New("unexpected http status")
	ErrNoFileSystem     = errors.New("download environment has no filesystem")
	ErrIncomplete       = errors.New("download incomplete")

	// Job errors
	ErrJobNotFound = errors.New("job not found")
	ErrEmptyJob    = errors.New("job has nothing to do")
)

// IsCancellation reports whether err is an expected cancellation rather than a failure.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// SkippableError represents an error that can be logged and skipped.
// Processing can continue with the next item when this error occurs.
type SkippableError struct {
	Err     error
	Context string
}

// Error returns the error message
func (e *SkippableError) Error() string {
	if e.Context != "" {
		if e.Err != nil {
			return e.Context + ": " + e.Err.Error()
		}
		return e.Context
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "skippable error"
}

// Unwrap returns the underlying error
func (e *SkippableError) Unwrap() error {
	return e.Err
}

// NewSkippableError creates a new skippable error
func NewSkippableError(err error, context string) *SkippableError {
	return &SkippableError{Err: err, Context: context}
}

// IsSkippable returns true if the error can be skipped
func IsSkippable(err error) bool {
	var se *SkippableError
	return errors.As(err, &se)
}

// RetryableError represents an error that should trigger a retry.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// GetRetryAfter returns the retry duration if the error is retryable
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}

// Common skippable errors for convenience
var (
	ErrSkipFilePresent    = NewSkippableError(nil, "file already present")
	ErrSkipMalformedEntry = NewSkippableError(ErrInvalidInput, "malformed manifest entry")
)
