package contractor

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the pipeline failure taxonomy. Callers classify
// failures with errors.Is rather than string matching.
var (
	// ErrInvalidCategory rejects a batch request for an unknown category.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrPoolTimeout means no browser session became free before the caller's
	// context expired.
	ErrPoolTimeout = errors.New("browser pool timeout")
	// ErrNavigationTimeout means a page did not reach its content signal in time.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrBlockedBySource means the source served a CAPTCHA or challenge page.
	// Not retried; remaining pages of the source are skipped for the run.
	ErrBlockedBySource = errors.New("blocked by source")
	// ErrAuthFailure means the login step of an authenticated source failed.
	ErrAuthFailure = errors.New("source authentication failed")
	// ErrInsufficientIdentity rejects a candidate with neither a usable phone
	// nor a usable name+city pair.
	ErrInsufficientIdentity = errors.New("insufficient identity")
	// ErrStorageUnavailable wraps persistence failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrAborted marks work cancelled by the batch deadline, as opposed to
	// work that broke.
	ErrAborted = errors.New("aborted")
)

// ErrorKind is the wire label for a taxonomy entry.
type ErrorKind string

// Error kinds surfaced in batch error lists.
const (
	KindInvalidCategory   ErrorKind = "invalid_category"
	KindPoolTimeout       ErrorKind = "pool_timeout"
	KindNavigationTimeout ErrorKind = "navigation_timeout"
	KindBlockedBySource   ErrorKind = "blocked_by_source"
	KindAuthFailure       ErrorKind = "auth_failure"
	KindStorageFailure    ErrorKind = "storage_unavailable"
	KindAborted           ErrorKind = "aborted"
	KindOther             ErrorKind = "error"
)

// Classify maps err onto its taxonomy kind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidCategory):
		return KindInvalidCategory
	case errors.Is(err, ErrPoolTimeout):
		return KindPoolTimeout
	case errors.Is(err, ErrNavigationTimeout):
		return KindNavigationTimeout
	case errors.Is(err, ErrBlockedBySource):
		return KindBlockedBySource
	case errors.Is(err, ErrAuthFailure):
		return KindAuthFailure
	case errors.Is(err, ErrStorageUnavailable):
		return KindStorageFailure
	case errors.Is(err, ErrAborted):
		return KindAborted
	default:
		return KindOther
	}
}

// SourceError records a per-source failure in a batch error list.
type SourceError struct {
	SourceID string    `json:"source_id"`
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
}

// NewSourceError builds a SourceError from a failed source run.
func NewSourceError(sourceID string, err error) SourceError {
	return SourceError{
		SourceID: sourceID,
		Kind:     Classify(err),
		Message:  err.Error(),
	}
}

func (e SourceError) Error() string {
	return fmt.Sprintf("source %s: %s: %s", e.SourceID, e.Kind, e.Message)
}
