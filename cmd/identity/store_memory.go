package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used when no database is configured
// (dev mode) and by service-level tests. It mirrors the PostgresStore
// contract, including the single-default address invariant and combined
// login-key lookups.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*memUser // id -> user
}

type memUser struct {
	user      User
	hash      string
	addresses []Address // ordered by insertion
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*memUser)}
}

// CreateUser registers a user, enforcing normalized username/email uniqueness
// under the store lock (the in-memory analog of the Postgres unique indexes).
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username and email are required"}
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}

	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "unknown role"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	usernameNorm := NormalizeUsername(username)
	emailNorm := NormalizeEmail(email)

	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.users {
		if rec.user.UsernameNorm == usernameNorm {
			return User{}, ConflictError{Op: op, Field: "username"}
		}
		if rec.user.EmailNorm == emailNorm {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
	}

	u := User{
		ID:           id,
		Username:     username,
		UsernameNorm: usernameNorm,
		Email:        email,
		EmailNorm:    emailNorm,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         role,
		CreatedAt:    now,
	}
	s.users[id] = &memUser{user: u, hash: in.PasswordHash}

	return u, nil
}

// GetUserByID fetches a user by id.
func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[strings.TrimSpace(id)]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return rec.user, nil
}

// GetUserAuthByLogin matches either normalized login key.
func (s *MemoryStore) GetUserAuthByLogin(ctx context.Context, username, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByLogin"

	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	usernameNorm := NormalizeUsername(username)
	emailNorm := NormalizeEmail(email)
	if usernameNorm == "" && emailNorm == "" {
		return UserAuth{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username or email is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.users {
		if (usernameNorm != "" && rec.user.UsernameNorm == usernameNorm) ||
			(emailNorm != "" && rec.user.EmailNorm == emailNorm) {
			return UserAuth{User: rec.user, PasswordHash: rec.hash}, nil
		}
	}
	return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
}

// ListAddresses returns a copy of the user's address book in insertion order.
func (s *MemoryStore) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	const op = "identity.ListAddresses"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[strings.TrimSpace(userID)]
	if !ok {
		return nil, NotFoundError{Op: op, Resource: "user"}
	}
	return copyAddresses(rec.addresses), nil
}

// AddAddress appends an address; the clear-defaults + insert pair runs under
// one lock acquisition, so callers never observe two defaults.
func (s *MemoryStore) AddAddress(ctx context.Context, userID string, in AddAddressInput) (Address, error) {
	const op = "identity.AddAddress"

	if err := ctx.Err(); err != nil {
		return Address{}, err
	}
	if strings.TrimSpace(in.Street) == "" || strings.TrimSpace(in.City) == "" ||
		strings.TrimSpace(in.State) == "" || strings.TrimSpace(in.PostalCode) == "" ||
		strings.TrimSpace(in.Country) == "" {
		return Address{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "street, city, state, postal_code and country are required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewULID(now)
	if err != nil {
		return Address{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[strings.TrimSpace(userID)]
	if !ok {
		return Address{}, NotFoundError{Op: op, Resource: "user"}
	}

	if in.MakeDefault {
		for i := range rec.addresses {
			rec.addresses[i].IsDefault = false
		}
	}

	a := Address{
		ID:         id,
		Street:     strings.TrimSpace(in.Street),
		City:       strings.TrimSpace(in.City),
		State:      strings.TrimSpace(in.State),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    strings.TrimSpace(in.Country),
		Phone:      pgTrimPtr(in.Phone),
		IsDefault:  in.MakeDefault,
		CreatedAt:  now,
	}
	rec.addresses = append(rec.addresses, a)

	return a, nil
}

// RemoveAddress deletes an address and returns the remaining list.
// No default re-promotion, matching PostgresStore.
func (s *MemoryStore) RemoveAddress(ctx context.Context, userID, addressID string) ([]Address, error) {
	const op = "identity.RemoveAddress"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[strings.TrimSpace(userID)]
	if !ok {
		return nil, NotFoundError{Op: op, Resource: "user"}
	}

	addressID = strings.TrimSpace(addressID)
	idx := -1
	for i, a := range rec.addresses {
		if a.ID == addressID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, NotFoundError{Op: op, Resource: "address"}
	}

	rec.addresses = append(rec.addresses[:idx], rec.addresses[idx+1:]...)
	return copyAddresses(rec.addresses), nil
}

func copyAddresses(in []Address) []Address {
	out := make([]Address, len(in))
	copy(out, in)
	return out
}
