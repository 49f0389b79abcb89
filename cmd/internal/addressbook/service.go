// Package addressbook implements address-book mutations for bazaar accounts.
//
// It owns the single-default rule: at most one address per user is the
// default, the first address always becomes the default, and removing the
// default leaves the book with no default rather than promoting another
// entry. Storage enforces the invariant as a backstop; this package decides
// the outcome.
package addressbook

import (
	"context"
	"time"

	"bazaar/cmd/identity"
)

// Service applies address-book operations on top of an identity.Store.
type Service struct {
	store identity.Store
}

// NewService constructs a Service.
func NewService(store identity.Store) *Service {
	return &Service{store: store}
}

// AddInput describes a new address as requested by the caller.
// SetDefault is the caller's wish; Add decides the actual outcome.
type AddInput struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      *string
	SetDefault bool
}

// List returns the user's address book and asserts the single-default
// invariant on the way out. More than one default means stored state is
// corrupt, which is an internal failure, never silently repaired.
func (s *Service) List(ctx context.Context, userID string) ([]identity.Address, error) {
	addrs, err := s.store.ListAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkSingleDefault(addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

// Add appends an address and returns the created entry, with its assigned
// id, together with the updated book.
//
// Default resolution: the caller's SetDefault wish is honored, and an empty
// book forces the first entry to become the default even when the caller did
// not ask. When the new entry is the default, existing defaults are cleared
// in the same atomic store operation.
func (s *Service) Add(ctx context.Context, now time.Time, userID string, in AddInput) (identity.Address, []identity.Address, error) {
	existing, err := s.store.ListAddresses(ctx, userID)
	if err != nil {
		return identity.Address{}, nil, err
	}

	makeDefault := in.SetDefault || len(existing) == 0

	created, err := s.store.AddAddress(ctx, userID, identity.AddAddressInput{
		Street:      in.Street,
		City:        in.City,
		State:       in.State,
		PostalCode:  in.PostalCode,
		Country:     in.Country,
		Phone:       in.Phone,
		MakeDefault: makeDefault,
		Now:         now,
	})
	if err != nil {
		return identity.Address{}, nil, err
	}

	addrs, err := s.store.ListAddresses(ctx, userID)
	if err != nil {
		return identity.Address{}, nil, err
	}
	if err := checkSingleDefault(addrs); err != nil {
		return identity.Address{}, nil, err
	}
	return created, addrs, nil
}

// Remove deletes an address and returns the remaining book. Removing the
// default does not promote a replacement.
func (s *Service) Remove(ctx context.Context, userID, addressID string) ([]identity.Address, error) {
	remaining, err := s.store.RemoveAddress(ctx, userID, addressID)
	if err != nil {
		return nil, err
	}
	if err := checkSingleDefault(remaining); err != nil {
		return nil, err
	}
	return remaining, nil
}

func checkSingleDefault(addrs []identity.Address) error {
	defaults := 0
	for _, a := range addrs {
		if a.IsDefault {
			defaults++
		}
	}
	if defaults > 1 {
		return identity.OpError{
			Op:   "addressbook.checkSingleDefault",
			Kind: identity.ErrInvariant,
			Msg:  "multiple default addresses",
		}
	}
	return nil
}
