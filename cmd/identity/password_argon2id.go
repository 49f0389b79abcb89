package identity

import (
	"errors"

	"bazaar/cmd/security/password"
)

// Password hashing delegates to cmd/security/password as the single source
// of truth for Argon2id parameters and password policy (defaults + env
// overrides). identity keeps thin wrappers so store and service code never
// imports the crypto package directly.

// HashPassword returns a PHC-style Argon2id hash string for plain.
// Policy violations surface as ErrInvalidInput-kinded OpErrors so the API
// layer can map them to a 400 without inspecting crypto errors.
func HashPassword(plain string) (string, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		// Invalid env is an operational error, not a weak fallback.
		return "", err
	}

	enc, err := cfg.Hash(plain)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort):
			return "", OpError{Op: "identity.HashPassword", Kind: ErrInvalidInput, Msg: "password too short"}
		case errors.Is(err, password.ErrPasswordTooLong):
			return "", OpError{Op: "identity.HashPassword", Kind: ErrInvalidInput, Msg: "password too long"}
		case errors.Is(err, password.ErrWeakPassword):
			return "", OpError{Op: "identity.HashPassword", Kind: ErrInvalidInput, Msg: "weak password"}
		default:
			return "", err
		}
	}
	return enc, nil
}

// VerifyPassword checks plain against a PHC Argon2id digest.
// Malformed digests verify as a mismatch rather than an error: a corrupted
// row must look exactly like a wrong password to callers.
func VerifyPassword(plain, encodedPHC string) (bool, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		return false, err
	}

	ok, err := cfg.Verify(encodedPHC, plain)
	if err != nil {
		if errors.Is(err, password.ErrInvalidHash) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}
