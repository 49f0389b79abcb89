package cart

import (
	"context"
	"time"
)

// Service is the application surface for cart operations. Validation and
// merge semantics live in the stores; the service pins timestamps and keeps
// handlers off the raw Store interface.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns the user's cart, empty if nothing was ever added.
func (s *Service) Get(ctx context.Context, userID string) (Cart, error) {
	return s.store.GetCart(ctx, userID)
}

// AddItem adds quantity of a product, merging with an existing line.
func (s *Service) AddItem(ctx context.Context, now time.Time, userID string, in AddItemInput) (Cart, error) {
	if in.Now.IsZero() {
		in.Now = now
	}
	return s.store.AddItem(ctx, userID, in)
}

// SetQuantity overwrites a line's quantity; zero or less removes the line.
func (s *Service) SetQuantity(ctx context.Context, now time.Time, userID, productID string, quantity int) (Cart, error) {
	return s.store.SetQuantity(ctx, userID, productID, quantity, now)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.store.Clear(ctx, userID)
}
