package session

import "errors"

var (
	// ErrInvalidToken is returned when a session token fails signature,
	// structure, or expiry checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrRevoked is returned when a structurally valid, unexpired token
	// appears in the revocation registry.
	ErrRevoked = errors.New("token revoked")

	// ErrInvalidCredentials is returned for every credential-verification
	// failure at login: unknown login key and wrong password collapse into
	// this one error so callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRegistryUnavailable is returned when the revocation registry cannot
	// be reached during validation. Validation fails closed on it.
	ErrRegistryUnavailable = errors.New("revocation registry unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
