// Package cart implements bazaar's per-user shopping cart.
//
// A cart is a keyed bag: one line per product id, quantities merged on
// repeat adds. Carts ride on the same identity accounts and error kinds as
// the rest of the service.
package cart

import (
	"context"
	"time"
)

// Item is one cart line. UnitPriceCents is the price snapshot taken when the
// line was first added; repeat adds merge quantity but keep the snapshot.
type Item struct {
	ProductID      string
	Name           string
	UnitPriceCents int64
	Quantity       int

	UpdatedAt time.Time
}

// Cart is a user's full cart.
type Cart struct {
	UserID string
	Items  []Item
}

// TotalCents sums the cart's line totals.
func (c Cart) TotalCents() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.UnitPriceCents * int64(it.Quantity)
	}
	return total
}

// AddItemInput describes an add-to-cart request as seen by the store.
type AddItemInput struct {
	ProductID      string
	Name           string
	UnitPriceCents int64
	Quantity       int
	Now            time.Time
}

// Store is the cart persistence boundary.
//
// Contracts:
//   - AddItem merges atomically: adding a product already in the cart
//     increments its quantity in one storage operation, so concurrent adds
//     never lose an increment.
//   - SetQuantity with quantity <= 0 removes the line; setting a quantity on
//     an absent line is a not-found error, never an implicit add.
//   - GetCart on a user with no lines returns an empty cart, not an error.
type Store interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, userID string, in AddItemInput) (Cart, error)
	SetQuantity(ctx context.Context, userID, productID string, quantity int, now time.Time) (Cart, error)
	Clear(ctx context.Context, userID string) error
}
