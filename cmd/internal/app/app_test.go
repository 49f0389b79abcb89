package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	t.Setenv("BAZAAR_SESSION_SECRET", "0123456789abcdef0123456789abcdef")

	// Cheap hashing so register/login tests stay fast.
	t.Setenv("BAZAAR_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("BAZAAR_ARGON2_ITERATIONS", "1")
	t.Setenv("BAZAAR_ARGON2_PARALLELISM", "1")

	cfg := LoadConfig()
	cfg.DatabaseURL = ""
	cfg.RedisURL = ""

	a, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestReadyzInMemoryMode(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReadyzRequiresConfiguredBackends(t *testing.T) {
	t.Setenv("BAZAAR_SESSION_SECRET", "0123456789abcdef0123456789abcdef")

	cfg := LoadConfig()
	cfg.DatabaseURL = ""
	cfg.RedisURL = ""
	cfg.ReadinessRequireDB = true

	a, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t)
	h := a.Handler()

	// Drive one request through the stack so the request counter exists.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bazaar_http_requests_total") {
		t.Fatal("scrape output missing bazaar_http_requests_total")
	}
}

func TestAuthRoutesWired(t *testing.T) {
	a := newTestApp(t)

	body := strings.NewReader(`{"username":"wired","email":"wired@example.com","password":"correct horse"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestCartRoutesGated(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous cart status = %d, want 401", rec.Code)
	}
}

func TestNewRejectsMissingSessionSecret(t *testing.T) {
	t.Setenv("BAZAAR_SESSION_SECRET", "")

	cfg := LoadConfig()
	cfg.DatabaseURL = ""
	cfg.RedisURL = ""

	if _, err := New(cfg, testLogger()); err == nil {
		t.Fatal("expected error without session secret")
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Run("policy off", func(t *testing.T) {
		if err := ValidateSecurityConfig(Config{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("policy on, key missing", func(t *testing.T) {
		t.Setenv("BAZAAR_CREDENTIAL_HMAC_KEY", "")
		err := ValidateSecurityConfig(Config{RequireCredentialHMAC: true})
		if err == nil || !strings.Contains(err.Error(), "missing") {
			t.Fatalf("err = %v, want missing-key error", err)
		}
	})

	t.Run("policy on, key too short", func(t *testing.T) {
		t.Setenv("BAZAAR_CREDENTIAL_HMAC_KEY", "short")
		err := ValidateSecurityConfig(Config{RequireCredentialHMAC: true})
		if err == nil || !strings.Contains(err.Error(), "too short") {
			t.Fatalf("err = %v, want short-key error", err)
		}
	})

	t.Run("policy on, key ok", func(t *testing.T) {
		t.Setenv("BAZAAR_CREDENTIAL_HMAC_KEY", "0123456789abcdef0123456789abcdef")
		if err := ValidateSecurityConfig(Config{RequireCredentialHMAC: true}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMetricsRoute(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/api/auth/login", "/api/auth/login"},
		{"/api/cart", "/api/cart"},
		{"/api/cart/items/01J0000000000000000000PROD", "/api/cart/items/:id"},
		{"/api/auth/users/me/addresses/01J0000000000000000000ADDR", "/api/auth/users/me/addresses/:id"},
		{"/api/cart/items/", "/api/cart/items/"},
	}
	for _, tc := range cases {
		if got := metricsRoute(tc.in); got != tc.want {
			t.Fatalf("metricsRoute(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
