package cart

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar/cmd/identity"
)

// PostgresStore implements cart persistence over PostgreSQL.
//
// Lines live in a single cart_items table keyed (user_id, product_id); the
// merge-on-add contract is satisfied with INSERT ... ON CONFLICT, so two
// concurrent adds of the same product both land.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema used by the cart store (default "bazaar").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentIsValid(schema) {
			return fmt.Errorf("cart: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
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
		return nil, fmt.Errorf("cart: nil pool")
	}
	return st, nil
}

const itemColumns = `product_id, name, unit_price_cents, quantity, updated_at`

// GetCart loads all cart lines for a user, oldest line first.
func (s *PostgresStore) GetCart(ctx context.Context, userID string) (Cart, error) {
	const op = "cart.GetCart"

	if err := ctx.Err(); err != nil {
		return Cart{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, invalid(op, "missing user_id")
	}

	items := pgIdent(s.schema, "cart_items")

	rows, err := s.pool.Query(ctx,
		`SELECT `+itemColumns+`
		   FROM `+items+`
		  WHERE user_id = $1
		  ORDER BY created_at, product_id`,
		userID,
	)
	if err != nil {
		return Cart{}, pgWrapErr(op, err)
	}
	defer rows.Close()

	lines, err := scanItems(rows)
	if err != nil {
		return Cart{}, pgWrapErr(op, err)
	}
	return Cart{UserID: userID, Items: lines}, nil
}

// AddItem upserts a line; on conflict the quantities add and the price
// snapshot from the first add is kept.
func (s *PostgresStore) AddItem(ctx context.Context, userID string, in AddItemInput) (Cart, error) {
	const op = "cart.AddItem"

	if err := ctx.Err(); err != nil {
		return Cart{}, err
	}
	userID = strings.TrimSpace(userID)
	productID := strings.TrimSpace(in.ProductID)
	if userID == "" || productID == "" {
		return Cart{}, invalid(op, "missing user_id or product_id")
	}
	if in.Quantity <= 0 {
		return Cart{}, invalid(op, "quantity must be positive")
	}
	if in.UnitPriceCents < 0 {
		return Cart{}, invalid(op, "negative unit price")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	items := pgIdent(s.schema, "cart_items")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+items+` (
		     user_id, product_id, name, unit_price_cents, quantity, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $6)
		   ON CONFLICT (user_id, product_id) DO UPDATE
		      SET quantity   = `+items+`.quantity + EXCLUDED.quantity,
		          updated_at = EXCLUDED.updated_at`,
		userID,
		productID,
		strings.TrimSpace(in.Name),
		in.UnitPriceCents,
		in.Quantity,
		now,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return Cart{}, identity.NotFoundError{Op: op, Resource: "user"}
		}
		return Cart{}, pgWrapErr(op, err)
	}

	return s.GetCart(ctx, userID)
}

// SetQuantity updates one line. quantity <= 0 deletes it.
func (s *PostgresStore) SetQuantity(ctx context.Context, userID, productID string, quantity int, now time.Time) (Cart, error) {
	const op = "cart.SetQuantity"

	if err := ctx.Err(); err != nil {
		return Cart{}, err
	}
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return Cart{}, invalid(op, "missing user_id or product_id")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	items := pgIdent(s.schema, "cart_items")

	var tag pgconn.CommandTag
	var err error
	if quantity <= 0 {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM `+items+` WHERE user_id = $1 AND product_id = $2`,
			userID, productID,
		)
	} else {
		tag, err = s.pool.Exec(ctx,
			`UPDATE `+items+`
			    SET quantity = $3, updated_at = $4
			  WHERE user_id = $1 AND product_id = $2`,
			userID, productID, quantity, now,
		)
	}
	if err != nil {
		return Cart{}, pgWrapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return Cart{}, identity.NotFoundError{Op: op, Resource: "cart item"}
	}

	return s.GetCart(ctx, userID)
}

// Clear drops every line for the user. Clearing an empty cart is a no-op.
func (s *PostgresStore) Clear(ctx context.Context, userID string) error {
	const op = "cart.Clear"

	if err := ctx.Err(); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return invalid(op, "missing user_id")
	}

	items := pgIdent(s.schema, "cart_items")

	_, err := s.pool.Exec(ctx,
		`DELETE FROM `+items+` WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return pgWrapErr(op, err)
	}
	return nil
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	out := make([]Item, 0, 4)
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ProductID, &it.Name, &it.UnitPriceCents, &it.Quantity, &it.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func invalid(op, msg string) error {
	return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: msg}
}

func pgIdentIsValid(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return s != ""
}

func pgIdent(schema, name string) string {
	return `"` + schema + `"."` + name + `"`
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

// pgWrapErr maps connectivity failures onto the ErrUnavailable kind so the
// API layer can answer 503 instead of a generic internal error.
func pgWrapErr(op string, err error) error {
	if pgIsUnavailable(err) {
		return identity.OpError{Op: op, Kind: identity.ErrUnavailable, Msg: "storage unavailable"}
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
