package identity

import (
	"context"
	"time"
)

// Role is a user's authorization role.
type Role string

const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// SelfAssignable reports whether a caller may request r at registration time.
// Admin accounts are provisioned out of band, never self-assigned.
func (r Role) SelfAssignable() bool {
	return r == RoleUser || r == RoleSeller
}

// User is bazaar's canonical account record.
// The password digest is deliberately NOT part of this struct; it only
// travels inside UserAuth during credential verification.
type User struct {
	ID           string
	Username     string
	UsernameNorm string
	Email        string
	EmailNorm    string

	FirstName string
	LastName  string

	Role Role

	CreatedAt time.Time
}

// UserAuth couples a user with its password digest for login verification.
// Never log or serialize the digest.
type UserAuth struct {
	User         User
	PasswordHash string
}

// Address is a single entry in a user's address book.
// Invariant: at most one address per user has IsDefault = true.
type Address struct {
	ID         string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      *string
	IsDefault  bool

	CreatedAt time.Time
}

// CreateUserInput describes a registration request as seen by the store.
// PasswordHash must already be an encoded argon2id digest; the store never
// sees plaintext passwords.
type CreateUserInput struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	Now          time.Time
}

// AddAddressInput describes a new address entry.
// MakeDefault is the already-decided outcome of the default rule
// (requested-default OR first-address); the store treats it as an
// instruction, not a hint.
type AddAddressInput struct {
	Street      string
	City        string
	State       string
	PostalCode  string
	Country     string
	Phone       *string
	MakeDefault bool
	Now         time.Time
}

// Store is the identity persistence boundary.
//
// Contracts:
//   - CreateUser relies on storage-level uniqueness of the normalized
//     username/email as the final authority for concurrent registration
//     races, and reports a violation as ConflictError.
//   - GetUserAuthByLogin performs a single combined lookup matching either
//     normalized login key; at least one of username/email must be non-empty.
//   - AddAddress must apply "clear existing defaults" and "insert" as one
//     atomic unit when MakeDefault is set: no reader may ever observe two
//     defaults.
//   - RemoveAddress does not promote a replacement default; removing the
//     default address legitimately leaves zero defaults.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserAuthByLogin(ctx context.Context, username, email string) (UserAuth, error)

	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	AddAddress(ctx context.Context, userID string, in AddAddressInput) (Address, error)
	RemoveAddress(ctx context.Context, userID, addressID string) ([]Address, error)
}
