package password

import (
	"strings"
	"testing"
)

// testConfig returns a deliberately cheap config so tests stay fast.
func testConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   8 * 1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{MinLength: 8, MaxLength: 256},
	}
}

func TestHashVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	enc, err := cfg.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$") {
		t.Fatalf("unexpected encoding prefix: %q", enc)
	}

	ok, err := cfg.Verify(enc, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}

	ok, err = cfg.Verify(enc, "wrong password entirely")
	if err != nil {
		t.Fatalf("Verify mismatch: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestHash_PolicyBounds(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	if _, err := cfg.Hash("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := cfg.Hash(strings.Repeat("x", 300)); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	cases := []string{
		"",
		"not a hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA",
	}
	for _, enc := range cases {
		if _, err := cfg.Verify(enc, "whatever-password"); err != ErrInvalidHash {
			t.Fatalf("Verify(%q): expected ErrInvalidHash, got %v", enc, err)
		}
	}
}

func TestVerify_RefusesOversizedParams(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	// Attacker-supplied hash demanding far more memory than configured.
	enc := "$argon2id$v=19$m=1048576,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA"
	if _, err := cfg.Verify(enc, "whatever-password"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash for oversized params, got %v", err)
	}
}

func TestValidate_RejectVeryWeak(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Policy.RejectVeryWeak = true

	weak := []string{"aaaaaaaaaa", "1234567890", "password123"}
	for _, pw := range weak {
		if err := cfg.Validate(pw); err != ErrWeakPassword {
			t.Fatalf("Validate(%q): expected ErrWeakPassword, got %v", pw, err)
		}
	}

	if err := cfg.Validate("plausibly fine passphrase 7"); err != nil {
		t.Fatalf("Validate strong: %v", err)
	}
}
