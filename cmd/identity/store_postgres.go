package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
//   - Address mutations serialize per user via SELECT ... FOR UPDATE on the user
//     row, so the single-default invariant holds under concurrent writers. A
//     partial unique index (uq_addresses_default) backstops it at the storage level.
//   - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "bazaar").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "bazaar",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id, username, username_norm, email, email_norm, first_name, last_name, role, created_at`

const addressColumns = `id, street, city, state, postal_code, country, phone, is_default, created_at`

// CreateUser inserts a new user row. The unique indexes on username_norm and
// email_norm are the final authority for registration races: a violation is
// reported as ConflictError regardless of any earlier existence check.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	if username == "" || email == "" {
		return User{}, pgInvalid(op, "username and email are required")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, pgInvalid(op, "password hash is required")
	}

	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return User{}, pgInvalid(op, "unknown role")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	usernameNorm := NormalizeUsername(username)
	emailNorm := NormalizeEmail(email)
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)

	userID, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, username, username_norm, email, email_norm,
		     password_hash, first_name, last_name, role, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		userID,
		username,
		usernameNorm,
		email,
		emailNorm,
		in.PasswordHash,
		firstName,
		lastName,
		string(role),
		now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, pgWrapErr(op, err)
	}

	return User{
		ID:           userID,
		Username:     username,
		UsernameNorm: usernameNorm,
		Email:        email,
		EmailNorm:    emailNorm,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
		CreatedAt:    now,
	}, nil
}

// GetUserByID fetches a user by its ULID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, pgInvalid(op, "missing id")
	}

	users := pgIdent(s.schema, "users")

	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE id = $1`,
		id,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, pgWrapErr(op, err)
	}
	return u, nil
}

// GetUserAuthByLogin performs the combined login-key lookup: a single query
// matching either the normalized username or the normalized email. At least
// one of the two must be non-empty.
func (s *PostgresStore) GetUserAuthByLogin(ctx context.Context, username, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByLogin"

	if s == nil || s.pool == nil {
		return UserAuth{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	usernameNorm := NormalizeUsername(username)
	emailNorm := NormalizeEmail(email)
	if usernameNorm == "" && emailNorm == "" {
		return UserAuth{}, pgInvalid(op, "username or email is required")
	}

	users := pgIdent(s.schema, "users")

	// Empty keys are passed as NULL so they can never match a stored norm.
	var unArg, emArg any
	if usernameNorm != "" {
		unArg = usernameNorm
	}
	if emailNorm != "" {
		emArg = emailNorm
	}

	var (
		u    User
		hash string
		role string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash
		   FROM `+users+`
		  WHERE username_norm = $1 OR email_norm = $2
		  LIMIT 1`,
		unArg, emArg,
	).Scan(
		&u.ID, &u.Username, &u.UsernameNorm, &u.Email, &u.EmailNorm,
		&u.FirstName, &u.LastName, &role, &u.CreatedAt, &hash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
		}
		return UserAuth{}, pgWrapErr(op, err)
	}
	u.Role = Role(role)

	return UserAuth{User: u, PasswordHash: hash}, nil
}

// ListAddresses returns the user's address book in insertion order.
func (s *PostgresStore) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	const op = "identity.ListAddresses"

	if s == nil || s.pool == nil {
		return nil, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pgInvalid(op, "missing user_id")
	}

	users := pgIdent(s.schema, "users")
	addresses := pgIdent(s.schema, "addresses")

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+users+` WHERE id = $1)`,
		userID,
	).Scan(&exists); err != nil {
		return nil, pgWrapErr(op, err)
	}
	if !exists {
		return nil, NotFoundError{Op: op, Resource: "user"}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+addressColumns+`
		   FROM `+addresses+`
		  WHERE user_id = $1
		  ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, pgWrapErr(op, err)
	}
	defer rows.Close()

	addrs, err := scanAddresses(rows)
	if err != nil {
		return nil, pgWrapErr(op, err)
	}
	return addrs, nil
}

// AddAddress inserts an address. When in.MakeDefault is set, existing
// defaults are cleared inside the same transaction, after the user row has
// been locked, so no concurrent reader or writer can observe two defaults.
func (s *PostgresStore) AddAddress(ctx context.Context, userID string, in AddAddressInput) (Address, error) {
	const op = "identity.AddAddress"

	if s == nil || s.pool == nil {
		return Address{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Address{}, err
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Address{}, pgInvalid(op, "missing user_id")
	}
	if strings.TrimSpace(in.Street) == "" || strings.TrimSpace(in.City) == "" ||
		strings.TrimSpace(in.State) == "" || strings.TrimSpace(in.PostalCode) == "" ||
		strings.TrimSpace(in.Country) == "" {
		return Address{}, pgInvalid(op, "street, city, state, postal_code and country are required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	addressID, err := NewULID(now)
	if err != nil {
		return Address{}, err
	}

	users := pgIdent(s.schema, "users")
	addresses := pgIdent(s.schema, "addresses")

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Address{}, pgWrapErr(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the user row: all address mutations for one user are serialized here.
	var one int
	err = tx.QueryRow(ctx,
		`SELECT 1 FROM `+users+` WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Address{}, NotFoundError{Op: op, Resource: "user"}
		}
		return Address{}, pgWrapErr(op, err)
	}

	if in.MakeDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE `+addresses+` SET is_default = FALSE WHERE user_id = $1 AND is_default`,
			userID,
		); err != nil {
			return Address{}, pgWrapErr(op, err)
		}
	}

	phone := pgTrimPtr(in.Phone)

	_, err = tx.Exec(ctx,
		`INSERT INTO `+addresses+` (
		     id, user_id, street, city, state, postal_code, country, phone, is_default, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		addressID,
		userID,
		strings.TrimSpace(in.Street),
		strings.TrimSpace(in.City),
		strings.TrimSpace(in.State),
		strings.TrimSpace(in.PostalCode),
		strings.TrimSpace(in.Country),
		phone,
		in.MakeDefault,
		now,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return Address{}, NotFoundError{Op: op, Resource: "user"}
		}
		if field, ok := pgClassifyUniqueViolation(err); ok && field == "default_address" {
			// Should be impossible under the FOR UPDATE serialization above.
			return Address{}, OpError{Op: op, Kind: ErrInvariant, Msg: "second default address"}
		}
		return Address{}, pgWrapErr(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Address{}, pgWrapErr(op, err)
	}

	return Address{
		ID:         addressID,
		Street:     strings.TrimSpace(in.Street),
		City:       strings.TrimSpace(in.City),
		State:      strings.TrimSpace(in.State),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    strings.TrimSpace(in.Country),
		Phone:      phone,
		IsDefault:  in.MakeDefault,
		CreatedAt:  now,
	}, nil
}

// RemoveAddress deletes an address and returns the remaining list.
// Deliberately no re-promotion: removing the default leaves zero defaults.
func (s *PostgresStore) RemoveAddress(ctx context.Context, userID, addressID string) ([]Address, error) {
	const op = "identity.RemoveAddress"

	if s == nil || s.pool == nil {
		return nil, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userID = strings.TrimSpace(userID)
	addressID = strings.TrimSpace(addressID)
	if userID == "" || addressID == "" {
		return nil, pgInvalid(op, "missing user_id or address_id")
	}

	users := pgIdent(s.schema, "users")
	addresses := pgIdent(s.schema, "addresses")

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, pgWrapErr(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	err = tx.QueryRow(ctx,
		`SELECT 1 FROM `+users+` WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundError{Op: op, Resource: "user"}
		}
		return nil, pgWrapErr(op, err)
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM `+addresses+` WHERE id = $1 AND user_id = $2`,
		addressID, userID,
	)
	if err != nil {
		return nil, pgWrapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, NotFoundError{Op: op, Resource: "address"}
	}

	rows, err := tx.Query(ctx,
		`SELECT `+addressColumns+`
		   FROM `+addresses+`
		  WHERE user_id = $1
		  ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, pgWrapErr(op, err)
	}
	remaining, err := scanAddresses(rows)
	rows.Close()
	if err != nil {
		return nil, pgWrapErr(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, pgWrapErr(op, err)
	}
	return remaining, nil
}

// ---- scanning ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.UsernameNorm, &u.Email, &u.EmailNorm,
		&u.FirstName, &u.LastName, &role, &u.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	return u, nil
}

func scanAddresses(rows pgx.Rows) ([]Address, error) {
	out := make([]Address, 0, 4)
	for rows.Next() {
		var a Address
		if err := rows.Scan(
			&a.ID, &a.Street, &a.City, &a.State, &a.PostalCode,
			&a.Country, &a.Phone, &a.IsDefault, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- helpers ----

func pgTrimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

func pgIdent(schema, name string) string {
	return `"` + schema + `"."` + name + `"`
}

// pgWrapErr maps connectivity failures onto the ErrUnavailable kind so the
// API layer can answer 503 instead of a generic internal error. Everything
// else passes through untouched.
func pgWrapErr(op string, err error) error {
	if pgIsUnavailable(err) {
		return OpError{Op: op, Kind: ErrUnavailable, Msg: "storage unavailable"}
	}
	return err
}

func pgIsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// connection_exception (08xxx) and server shutdown (57Pxx) classes.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	return false
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to heuristic substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_username_norm":
		return "username", true
	case "uq_users_email_norm":
		return "email", true
	case "uq_addresses_default":
		return "default_address", true
	default:
		switch {
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "email"):
			return "email", true
		case strings.Contains(c, "default"):
			return "default_address", true
		default:
			return "unique", true
		}
	}
}
