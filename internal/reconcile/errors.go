package reconcile

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes attempt failures.
type ErrorCode string

const (
	// ErrCodeEngineFailed: the modification engine errored, timed out, or
	// returned a malformed response. Nothing was committed.
	ErrCodeEngineFailed ErrorCode = "ENGINE_FAILED"

	// ErrCodeInvalidBatch: the batch failed structural validation. Nothing
	// was committed.
	ErrCodeInvalidBatch ErrorCode = "INVALID_BATCH"

	// ErrCodeCacheWriteFailed: the local cache could not be read before the
	// merge or could not persist the merged snapshot. Nothing was committed.
	ErrCodeCacheWriteFailed ErrorCode = "CACHE_WRITE_FAILED"

	// ErrCodeRemoteSyncFailed: the store of record rejected or never received
	// the push. The local commit stands.
	ErrCodeRemoteSyncFailed ErrorCode = "REMOTE_SYNC_FAILED"
)

// ErrStopped is returned for attempts submitted to, or still queued in, a
// stopped reconciler.
var ErrStopped = errors.New("reconciler stopped")

// AttemptError describes why an attempt did not settle.
type AttemptError struct {
	Code        ErrorCode
	ItineraryID string
	AttemptID   string
	State       State
	Err         error
}

// Error implements the error interface.
func (e *AttemptError) Error() string {
	if e.AttemptID != "" {
		return fmt.Sprintf("%s: %v (itinerary=%s, attempt=%s)", e.Code, e.Err, e.ItineraryID, e.AttemptID)
	}
	return fmt.Sprintf("%s: %v (itinerary=%s)", e.Code, e.Err, e.ItineraryID)
}

// Unwrap returns the underlying cause.
func (e *AttemptError) Unwrap() error {
	return e.Err
}

// IsRemoteSyncError reports whether err is a failed push after a local commit.
func IsRemoteSyncError(err error) bool {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Code == ErrCodeRemoteSyncFailed
	}
	return false
}

// IsAborted reports whether err ended an attempt before anything was committed.
func IsAborted(err error) bool {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.State == StateAborted
	}
	return errors.Is(err, ErrStopped)
}

// CodeOf returns the error code, or "" when err is not an *AttemptError.
func CodeOf(err error) ErrorCode {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
