// Package services implements the business logic for room tracking and tower
// construction. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// Validation failures never appear here: those are Outcome/Notification
// values, part of the state machine. Only store and transport faults cross
// component boundaries as errors, and translation into user-facing messages
// or HTTP status codes is the handler layer's job.
package services

import "errors"

var (
	// ErrStoreUnavailable wraps a failed write-through: the mutation was not
	// persisted and was not applied in memory either, so room state is
	// exactly as it was before the event.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidEvent is returned when an inbound event is malformed
	// (unknown kind, missing room id).
	ErrInvalidEvent = errors.New("invalid event")
)
