package tracker

import "errors"

var (
	// ErrEmptyKey is returned when Track is called without a fingerprint.
	ErrEmptyKey = errors.New("tracker: empty key")

	// ErrTrackerUnavailable wraps backend failures.
	ErrTrackerUnavailable = errors.New("tracker: backend unavailable")
)
