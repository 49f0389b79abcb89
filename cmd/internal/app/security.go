package app

import (
	"errors"

	"bazaar/cmd/security/token"
)

// ValidateSecurityConfig enforces bazaar's security policy at startup.
//
// Fail-fast is intentional: silently falling back to weaker crypto in
// production is unacceptable. Enforcement validates the same module that
// performs revocation-digest hashing (security/token).
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireCredentialHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 secret, measured in bytes because
	// the key is used as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: BAZAAR_REQUIRE_CREDENTIAL_HMAC=true but BAZAAR_CREDENTIAL_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: BAZAAR_REQUIRE_CREDENTIAL_HMAC=true but BAZAAR_CREDENTIAL_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	// Guards against a future change reintroducing the SHA fallback under policy.
	if !token.HMACEnabled() {
		return errors.New("security policy: BAZAAR_REQUIRE_CREDENTIAL_HMAC=true but credential hasher is not in HMAC mode")
	}

	return nil
}
