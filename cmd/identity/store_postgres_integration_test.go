package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when BAZAAR_DATABASE_URL is set.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_CreateUser_LoginLookup(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()

	u, err := store.CreateUser(ctx, CreateUserInput{
		Username:     "Ravi",
		Email:        "Ravi@Example.COM",
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$ZGlnZXN0ZGlnZXN0",
		FirstName:    "Ravi",
		LastName:     "Kumar",
		Role:         RoleSeller,
		Now:          now,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == "" || u.UsernameNorm != "ravi" || u.EmailNorm != "ravi@example.com" {
		t.Fatalf("unexpected user: %+v", u)
	}

	got, err := store.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Role != RoleSeller {
		t.Fatalf("role = %q, want seller", got.Role)
	}

	// Login lookup matches case-insensitively via the stored norms.
	auth, err := store.GetUserAuthByLogin(ctx, "RAVI", "")
	if err != nil {
		t.Fatalf("auth by username: %v", err)
	}
	if auth.User.ID != u.ID || auth.PasswordHash == "" {
		t.Fatalf("unexpected auth record: %+v", auth.User)
	}

	auth, err = store.GetUserAuthByLogin(ctx, "", "ravi@example.com")
	if err != nil {
		t.Fatalf("auth by email: %v", err)
	}
	if auth.User.ID != u.ID {
		t.Fatalf("email lookup got user %q, want %q", auth.User.ID, u.ID)
	}

	if _, err := store.GetUserAuthByLogin(ctx, "nobody", ""); !IsNotFound(err) {
		t.Fatalf("unknown login err = %v, want not-found", err)
	}
}

func TestPostgresStore_CreateUser_Conflicts(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	hash := "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$ZGlnZXN0ZGlnZXN0"

	if _, err := store.CreateUser(ctx, CreateUserInput{
		Username: "mina", Email: "mina@example.com", PasswordHash: hash,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	_, err = store.CreateUser(ctx, CreateUserInput{
		Username: "MINA", Email: "other@example.com", PasswordHash: hash,
	})
	var conflict ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "username" {
		t.Fatalf("username conflict err = %v", err)
	}

	_, err = store.CreateUser(ctx, CreateUserInput{
		Username: "mina2", Email: "Mina@Example.com", PasswordHash: hash,
	})
	if !errors.As(err, &conflict) || conflict.Field != "email" {
		t.Fatalf("email conflict err = %v", err)
	}
}

func TestPostgresStore_Addresses_SingleDefault(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	u, err := store.CreateUser(ctx, CreateUserInput{
		Username: "addr", Email: "addr@example.com",
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$ZGlnZXN0ZGlnZXN0",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	first, err := store.AddAddress(ctx, u.ID, testAddressInput("12 Main St", true))
	if err != nil {
		t.Fatalf("add first address: %v", err)
	}
	if !first.IsDefault {
		t.Fatalf("expected first address default")
	}

	second, err := store.AddAddress(ctx, u.ID, testAddressInput("9 Side Rd", true))
	if err != nil {
		t.Fatalf("add second address: %v", err)
	}
	if !second.IsDefault {
		t.Fatalf("expected second address default")
	}

	list, err := store.ListAddresses(ctx, u.ID)
	if err != nil {
		t.Fatalf("list addresses: %v", err)
	}
	if n := countDefaults(list); n != 1 {
		t.Fatalf("defaults = %d, want 1", n)
	}
	for _, a := range list {
		if a.ID == first.ID && a.IsDefault {
			t.Fatalf("first address still default after displacement")
		}
	}

	// Removing the default leaves zero defaults, never a promoted survivor.
	remaining, err := store.RemoveAddress(ctx, u.ID, second.ID)
	if err != nil {
		t.Fatalf("remove address: %v", err)
	}
	if n := countDefaults(remaining); n != 0 {
		t.Fatalf("defaults after removal = %d, want 0", n)
	}

	if _, err := store.RemoveAddress(ctx, u.ID, second.ID); !IsNotFound(err) {
		t.Fatalf("repeat removal err = %v, want not-found", err)
	}
}

func TestPostgresStore_Addresses_ConcurrentDefaults(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	u, err := store.CreateUser(ctx, CreateUserInput{
		Username: "race", Email: "race@example.com",
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$ZGlnZXN0ZGlnZXN0",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	wg.Add(writers)
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		street := fmt.Sprintf("%d Race Way", i)
		go func() {
			defer wg.Done()
			_, err := store.AddAddress(ctx, u.ID, testAddressInput(street, true))
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent add: %v", err)
		}
	}

	list, err := store.ListAddresses(ctx, u.ID)
	if err != nil {
		t.Fatalf("list addresses: %v", err)
	}
	if len(list) != writers {
		t.Fatalf("addresses = %d, want %d", len(list), writers)
	}
	if n := countDefaults(list); n != 1 {
		t.Fatalf("defaults = %d, want exactly 1", n)
	}
}

// ---- helpers ----

func testAddressInput(street string, makeDefault bool) AddAddressInput {
	return AddAddressInput{
		Street:      street,
		City:        "Pune",
		State:       "MH",
		PostalCode:  "411001",
		Country:     "IN",
		MakeDefault: makeDefault,
	}
}

func countDefaults(addrs []Address) int {
	n := 0
	for _, a := range addrs {
		if a.IsDefault {
			n++
		}
	}
	return n
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("BAZAAR_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: BAZAAR_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse BAZAAR_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (BAZAAR_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("new ulid: %v", err)
	}
	schema := "bazaar_identity_it_" + strings.ToLower(id)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	users := pgIdent(schema, "users")
	addresses := pgIdent(schema, "addresses")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  username_norm TEXT NOT NULL,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'seller', 'admin')),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT uq_users_username_norm UNIQUE (username_norm),
  CONSTRAINT uq_users_email_norm UNIQUE (email_norm)
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  street TEXT NOT NULL,
  city TEXT NOT NULL,
  state TEXT NOT NULL,
  postal_code TEXT NOT NULL,
  country TEXT NOT NULL,
  phone TEXT NULL,
  is_default BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_addresses_default
  ON %s (user_id) WHERE is_default;
`, users, addresses, users, addresses)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}
