// Package booking implements the reservation core: time-window
// resolution, pricing, availability and the reservation state machine.
// Persistence is abstracted behind store interfaces so the core can be
// exercised against MySQL in production and in-memory fakes in tests.
package booking

import "errors"

// Sentinel errors shared by the service and its stores.  Handlers
// translate them into HTTP status codes; callers may wrap them with
// fmt.Errorf("%w: ...") to add detail while keeping errors.Is working.
var (
	// ErrValidation marks malformed input: empty seat set, inverted
	// window, unknown seat/package, VIP mismatch.  Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means at least one requested seat is already taken
	// for an overlapping window.  The caller should re-query
	// availability and pick different seats or times.
	ErrConflict = errors.New("seats unavailable for the requested window")

	// ErrNotFound is returned for unknown reservation, club or user ids.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when a caller operates on a reservation
	// they do not own.
	ErrForbidden = errors.New("forbidden")

	// ErrPersistence marks a transient storage failure.  Retryable with
	// backoff; it must never be mistaken for success.
	ErrPersistence = errors.New("persistence failure")
)
