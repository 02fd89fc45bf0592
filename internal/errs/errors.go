// Package errs defines the typed errors surfaced by the data layer.
// Transient errors are retried locally and never reach callers one by one;
// what surfaces here is either structural or the end of a retry budget.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrDescriptorNotFound is returned by descriptor lookups on a miss.
var ErrDescriptorNotFound = errors.New("instrument descriptor not found")

// DataNotFoundError: no cached coverage and the remote provider is
// unreachable or unconfigured. Hint carries resolution steps for the caller.
type DataNotFoundError struct {
	InstrumentID  string
	TimeframeSpec string
	Hint          string
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("no data for %s %s: %s", e.InstrumentID, e.TimeframeSpec, e.Hint)
}

// ProviderUnavailableError: the remote connect or fetch failed after the
// retry budget was exhausted.
type ProviderUnavailableError struct {
	InstrumentID string
	Attempts     int
	LastErr      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider unavailable for %s after %d attempts: %v", e.InstrumentID, e.Attempts, e.LastErr)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.LastErr }

// RateLimitExceededError: the provider rejected a request on quota. Always
// retryable until the policy gives up.
type RateLimitExceededError struct {
	InstrumentID string
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("provider rate limit exceeded fetching %s", e.InstrumentID)
}

// CatalogCorruptionError: a partition directory or file name could not be
// parsed. Recorded and skipped during index rebuild; the affected range is
// treated as uncovered.
type CatalogCorruptionError struct {
	Path   string
	Reason string
}

func (e *CatalogCorruptionError) Error() string {
	return fmt.Sprintf("unparsable partition %s: %s", e.Path, e.Reason)
}

// ValidationError: one malformed input row in a bulk import. Collected with
// its row number, never aborts the batch.
type ValidationError struct {
	Row    int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// InvalidRequestError: a structurally bad request (unknown symbol, malformed
// range). Never retried.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string { return "invalid request: " + e.Reason }

// transientError wraps an error that should consume a retry attempt.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsRetryable classifies an error for the retry policy: timeouts, transient
// connection failures and rate-limit rejections consume attempts; anything
// structural is fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var invalid *InvalidRequestError
	if errors.As(err, &invalid) {
		return false
	}
	var rl *RateLimitExceededError
	if errors.As(err, &rl) {
		return true
	}
	var tr *transientError
	if errors.As(err, &tr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
