package password

import "errors"

// Stable sentinel errors for callers. The registration flow matches on the
// policy errors to answer 400; ErrInvalidHash on a stored digest is a data
// problem and stays a 500.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrInvalidHash      = errors.New("invalid password hash")
)
