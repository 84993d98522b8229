package database

import "errors"

var (
	// ErrNotFound covers missing bookings, rates and runs.
	ErrNotFound = errors.New("record not found")

	// ErrRunLocked rejects generate/backfill/delete against a locked payout run.
	ErrRunLocked = errors.New("payout run is locked")

	// ErrRateNotFound means no payout rate covers the requested instant.
	// The absence of a rate is never defaulted to zero.
	ErrRateNotFound = errors.New("no payout rate for duration/membership at this time")

	// ErrRateRetired rejects retiring a rate whose effective_to is already set.
	ErrRateRetired = errors.New("payout rate is already retired")

	// ErrConcurrentModification signals a lost optimistic-version race; the
	// caller re-reads and retries.
	ErrConcurrentModification = errors.New("booking was modified concurrently")
)
