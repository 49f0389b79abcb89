package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// RedisURL points at the shared revocation registry. Empty means the
	// in-process registry (single-instance dev mode only).
	RedisURL string

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool
	// If true:
	// - /readyz returns 503 unless Redis is configured and reachable.
	ReadinessRequireRedis bool

	// Security policy:
	// If true, BAZAAR_CREDENTIAL_HMAC_KEY MUST be set (>= 32 bytes) and
	// revocation digests must be HMAC-based.
	RequireCredentialHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("BAZAAR_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("BAZAAR_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("BAZAAR_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("BAZAAR_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("BAZAAR_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("BAZAAR_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("BAZAAR_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("BAZAAR_DATABASE_URL", ""),
		DBSchema:    EnvString("BAZAAR_DB_SCHEMA", "bazaar"),
		DBMaxConns:  EnvInt32("BAZAAR_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("BAZAAR_DB_MIN_CONNS", 0),

		RedisURL: EnvString("BAZAAR_REDIS_URL", ""),

		ReadinessRequireDB:    EnvBool("BAZAAR_READINESS_REQUIRE_DB", false),
		ReadinessRequireRedis: EnvBool("BAZAAR_READINESS_REQUIRE_REDIS", false),

		RequireCredentialHMAC: EnvBool("BAZAAR_REQUIRE_CREDENTIAL_HMAC", false),

		CORSAllowedOrigins:   EnvStringSlice("BAZAAR_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("BAZAAR_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("BAZAAR_CORS_MAX_AGE_SECONDS", 600),
	}
}
