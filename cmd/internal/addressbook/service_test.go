package addressbook

import (
	"context"
	"testing"
	"time"

	"bazaar/cmd/identity"
)

func seedUser(t *testing.T, store *identity.MemoryStore) identity.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), identity.CreateUserInput{
		Username:     "amara",
		Email:        "amara@example.com",
		PasswordHash: "phc-digest",
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func addrInput(street string, setDefault bool) AddInput {
	return AddInput{
		Street:     street,
		City:       "Lagos",
		State:      "LA",
		PostalCode: "100001",
		Country:    "NG",
		SetDefault: setDefault,
	}
}

func defaultCount(addrs []identity.Address) int {
	n := 0
	for _, a := range addrs {
		if a.IsDefault {
			n++
		}
	}
	return n
}

func TestFirstAddressBecomesDefault(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	svc := NewService(store)
	user := seedUser(t, store)
	ctx := context.Background()
	now := time.Now().UTC()

	// Explicitly NOT requested as default; an empty book overrides the wish.
	created, addrs, err := svc.Add(ctx, now, user.ID, addrInput("1 First St", false))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if created.ID == "" || !created.IsDefault {
		t.Fatalf("created entry missing id or default flag: %+v", created)
	}
	if len(addrs) != 1 || addrs[0].ID != created.ID {
		t.Fatalf("book should hold exactly the created entry: %+v", addrs)
	}
}

func TestRequestedDefaultDisplacesPrevious(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	svc := NewService(store)
	user := seedUser(t, store)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, _, err := svc.Add(ctx, now, user.ID, addrInput("1 First St", false)); err != nil {
		t.Fatalf("Add first: %v", err)
	}

	created, addrs, err := svc.Add(ctx, now.Add(time.Second), user.ID, addrInput("2 Second St", true))
	if err != nil {
		t.Fatalf("Add second: %v", err)
	}
	if !created.IsDefault {
		t.Fatalf("requested default not honored on the created entry: %+v", created)
	}
	if len(addrs) != 2 {
		t.Fatalf("len(addrs) = %d, want 2", len(addrs))
	}
	if defaultCount(addrs) != 1 {
		t.Fatalf("default count = %d, want 1", defaultCount(addrs))
	}
	if !addrs[1].IsDefault || addrs[0].IsDefault {
		t.Fatalf("default did not move to the new entry: %+v", addrs)
	}
}

func TestSecondAddressWithoutDefaultWishStaysNonDefault(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	svc := NewService(store)
	user := seedUser(t, store)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, _, err := svc.Add(ctx, now, user.ID, addrInput("1 First St", false)); err != nil {
		t.Fatalf("Add first: %v", err)
	}

	created, addrs, err := svc.Add(ctx, now.Add(time.Second), user.ID, addrInput("2 Second St", false))
	if err != nil {
		t.Fatalf("Add second: %v", err)
	}
	if created.IsDefault {
		t.Fatalf("unrequested default on a non-empty book: %+v", created)
	}
	if !addrs[0].IsDefault || addrs[1].IsDefault {
		t.Fatalf("expected first entry to stay the default: %+v", addrs)
	}
}

func TestRemoveDefaultLeavesNoDefault(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	svc := NewService(store)
	user := seedUser(t, store)
	ctx := context.Background()
	now := time.Now().UTC()

	first, _, err := svc.Add(ctx, now, user.ID, addrInput("1 First St", false))
	if err != nil {
		t.Fatalf("Add first: %v", err)
	}
	if _, _, err := svc.Add(ctx, now.Add(time.Second), user.ID, addrInput("2 Second St", false)); err != nil {
		t.Fatalf("Add second: %v", err)
	}

	remaining, err := svc.Remove(ctx, user.ID, first.ID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("len(remaining) = %d, want 1", len(remaining))
	}
	// No re-promotion.
	if defaultCount(remaining) != 0 {
		t.Fatalf("expected zero defaults after removing the default, got %+v", remaining)
	}
}

func TestRemoveNonDefaultKeepsDefault(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	svc := NewService(store)
	user := seedUser(t, store)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, _, err := svc.Add(ctx, now, user.ID, addrInput("1 First St", false)); err != nil {
		t.Fatalf("Add first: %v", err)
	}
	second, _, err := svc.Add(ctx, now.Add(time.Second), user.ID, addrInput("2 Second St", false))
	if err != nil {
		t.Fatalf("Add second: %v", err)
	}

	remaining, err := svc.Remove(ctx, user.ID, second.ID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(remaining) != 1 || !remaining[0].IsDefault {
		t.Fatalf("expected the original default to survive: %+v", remaining)
	}
}

func TestRemoveUnknownAddress(t *testing.T) {
	t.Parallel()

	store := identity.NewMemoryStore()
	svc := NewService(store)
	user := seedUser(t, store)

	_, err := svc.Remove(context.Background(), user.ID, "01HZXW5N8LKJH3G2F1E0D9C8B7")
	if !identity.IsNotFound(err) {
		t.Fatalf("Remove(unknown) = %v, want not-found", err)
	}
}

func TestListUnknownUser(t *testing.T) {
	t.Parallel()

	svc := NewService(identity.NewMemoryStore())

	_, err := svc.List(context.Background(), "01HZXW5N8LKJH3G2F1E0D9C8B7")
	if !identity.IsNotFound(err) {
		t.Fatalf("List(unknown user) = %v, want not-found", err)
	}
}
