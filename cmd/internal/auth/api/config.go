// Package authapi exposes bazaar's identity and session operations over HTTP.
package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// Session cookie transport. The cookie carries the signed session token
	// for browser clients; API clients use the Authorization header instead.
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
}

// LoadConfigFromEnv loads auth API config from environment variables with
// safe defaults.
//
// Env surface:
//   - BAZAAR_AUTH_TRUST_PROXY
//   - BAZAAR_AUTH_MAX_BODY_BYTES
//   - BAZAAR_AUTH_COOKIE_NAME
//   - BAZAAR_AUTH_COOKIE_PATH
//   - BAZAAR_AUTH_COOKIE_DOMAIN
//   - BAZAAR_AUTH_COOKIE_SECURE
//   - BAZAAR_AUTH_COOKIE_SAMESITE (strict|lax|none)
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:     envBool("BAZAAR_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:   envInt64("BAZAAR_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		CookieName:     envString("BAZAAR_AUTH_COOKIE_NAME", "bazaar_session"),
		CookiePath:     envString("BAZAAR_AUTH_COOKIE_PATH", "/"),
		CookieDomain:   envString("BAZAAR_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:   envBool("BAZAAR_AUTH_COOKIE_SECURE", true),
		CookieSameSite: envSameSite("BAZAAR_AUTH_COOKIE_SAMESITE", http.SameSiteLaxMode),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envSameSite(key string, def http.SameSite) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return def
	}
}
