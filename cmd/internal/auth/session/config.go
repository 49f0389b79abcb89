package session

import (
	"os"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls the session-token TTL, clock skew tolerance, the token issuer
// claim, and the HMAC signing secret. The struct is intentionally explicit
// and environment-driven so that production deployments can tune security
// parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of session tokens.
	Issuer string

	// TokenTTL defines the lifetime of issued session tokens. Tokens carry
	// their own expiry; there is no sliding renewal.
	TokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// SecretKey is the raw HS256 signing secret. Required, at least
	// MinSecretBytes long.
	SecretKey []byte
}

// MinSecretBytes is the minimum accepted HS256 secret length. Anything
// shorter undercuts the signature's brute-force resistance.
const MinSecretBytes = 32

// DefaultConfig returns defaults suitable for development.
//
// The signing secret has no default; LoadConfigFromEnv requires it.
func DefaultConfig() Config {
	return Config{
		Issuer:    "bazaar",
		TokenTTL:  24 * time.Hour,
		ClockSkew: 30 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - BAZAAR_SESSION_SECRET (>= 32 bytes)
//
// Optional (durations must be valid Go duration strings):
//   - BAZAAR_SESSION_ISSUER
//   - BAZAAR_SESSION_TOKEN_TTL
//   - BAZAAR_SESSION_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("BAZAAR_SESSION_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("BAZAAR_SESSION_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TokenTTL = d
	}

	if v := os.Getenv("BAZAAR_SESSION_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	secret := os.Getenv("BAZAAR_SESSION_SECRET")
	if len(secret) < MinSecretBytes {
		return Config{}, ErrConfig
	}
	cfg.SecretKey = []byte(secret)

	return cfg, nil
}
