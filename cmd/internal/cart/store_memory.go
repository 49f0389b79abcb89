package cart

import (
	"context"
	"strings"
	"sync"
	"time"

	"bazaar/cmd/identity"
)

// MemoryStore is an in-memory cart Store for dev mode and tests. It follows
// the PostgresStore contract, including merge-on-add and delete-on-zero.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string][]Item // userID -> lines in insertion order
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string][]Item)}
}

func (s *MemoryStore) GetCart(ctx context.Context, userID string) (Cart, error) {
	const op = "cart.GetCart"

	if err := ctx.Err(); err != nil {
		return Cart{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, invalid(op, "missing user_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return Cart{UserID: userID, Items: copyItems(s.carts[userID])}, nil
}

func (s *MemoryStore) AddItem(ctx context.Context, userID string, in AddItemInput) (Cart, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[userID]
	merged := false
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity += in.Quantity
			lines[i].UpdatedAt = now
			merged = true
			break
		}
	}
	if !merged {
		lines = append(lines, Item{
			ProductID:      productID,
			Name:           strings.TrimSpace(in.Name),
			UnitPriceCents: in.UnitPriceCents,
			Quantity:       in.Quantity,
			UpdatedAt:      now,
		})
	}
	s.carts[userID] = lines

	return Cart{UserID: userID, Items: copyItems(lines)}, nil
}

func (s *MemoryStore) SetQuantity(ctx context.Context, userID, productID string, quantity int, now time.Time) (Cart, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[userID]
	idx := -1
	for i := range lines {
		if lines[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Cart{}, identity.NotFoundError{Op: op, Resource: "cart item"}
	}

	if quantity <= 0 {
		lines = append(lines[:idx], lines[idx+1:]...)
	} else {
		lines[idx].Quantity = quantity
		lines[idx].UpdatedAt = now
	}
	s.carts[userID] = lines

	return Cart{UserID: userID, Items: copyItems(lines)}, nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	const op = "cart.Clear"

	if err := ctx.Err(); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return invalid(op, "missing user_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, userID)
	return nil
}

func copyItems(in []Item) []Item {
	out := make([]Item, len(in))
	copy(out, in)
	return out
}
