package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")

	// ErrInvariant marks a broken storage invariant (e.g. two default
	// addresses for one user). It indicates a bug, never caller misuse,
	// and must not leak to API clients as anything but an internal error.
	ErrInvariant = errors.New("invariant_violation")
)
