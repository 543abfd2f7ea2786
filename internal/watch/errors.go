package watch

import (
	"errors"
	"fmt"
)

// ErrorKind buckets failures for retry eligibility and reporting.
type ErrorKind string

// Failure kinds surfaced in run summaries and metrics.
const (
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindHTTP      ErrorKind = "http-error"
	ErrKindNetwork   ErrorKind = "network-error"
	ErrKindMalformed ErrorKind = "malformed-response"
	ErrKindStorage   ErrorKind = "storage"
)

// ErrLedgerUnavailable signals that a ledger or the catalog store cannot be
// reached. It aborts the whole batch: continuing would risk double commits.
var ErrLedgerUnavailable = errors.New("ledger storage unavailable")

// FetchError is a typed failure from a content fetch.
type FetchError struct {
	URL        string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on a later run.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case ErrKindTimeout, ErrKindNetwork:
		return true
	case ErrKindHTTP:
		return e.StatusCode >= 500
	}
	return false
}

// MalformedResponseError marks an AI response that failed schema validation.
// Non-retryable for the call; the item stays eligible for a future run.
type MalformedResponseError struct {
	Call   string
	Reason string
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Call, e.Reason)
}

// KindOf maps an error to its reporting bucket.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var me *MalformedResponseError
	if errors.As(err, &me) {
		return ErrKindMalformed
	}
	if errors.Is(err, ErrLedgerUnavailable) {
		return ErrKindStorage
	}
	return ErrKindNetwork
}

// IsRetryable reports whether a stage failure is worth retrying later.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	var me *MalformedResponseError
	return !errors.As(err, &me)
}
