package provenance

import "errors"

var (
	// ErrInvalidTransition is returned when a status change is not the
	// immediate successor of the chain's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMalformedInput is returned for empty identifiers, non-positive
	// timestamps, unknown statuses, or a missing predecessor hash.
	ErrMalformedInput = errors.New("malformed provenance input")

	// ErrConflict is returned by a SubmissionSink when the submitted event does
	// not extend the current chain tip (another writer got there first).
	ErrConflict = errors.New("provenance chain conflict")

	// ErrHistoryUnavailable wraps failures reading a product's history. It is
	// retryable and is never a verdict on the chain itself.
	ErrHistoryUnavailable = errors.New("provenance history unavailable")

	// ErrCorruptHistory is returned when a product's stored history fails
	// boundary validation. The fault lies with the store, not the caller.
	ErrCorruptHistory = errors.New("stored provenance history is corrupt")
)
