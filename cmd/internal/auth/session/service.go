package session

import (
	"context"
	"time"

	"bazaar/cmd/identity"
	sectoken "bazaar/cmd/security/token"
)

// Service implements the high-level session operations for bazaar.
//
// It registers accounts, verifies credentials, issues signed session tokens,
// validates presented tokens against the revocation registry and a fresh
// identity read, and revokes tokens ahead of expiry.
type Service struct {
	cfg      Config
	tokens   CredentialCodec
	store    identity.Store
	registry RevocationRegistry

	// dummyHash is a real argon2id digest verified against on login when the
	// account does not exist, so lookup misses cost the same as wrong
	// passwords and the two cannot be told apart by timing.
	dummyHash string
}

// Issued is the result of issuing a session token.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// RegisterInput describes a registration request.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      identity.Role
}

// LoginInput describes a login attempt. Exactly one of Username/Email is
// typically set; both being set is allowed and either may match.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// NewService constructs a Service.
//
// The dummy verification digest is derived up front so the first failed login
// does not pay a one-time setup cost distinguishable from later ones.
func NewService(cfg Config, tokens CredentialCodec, store identity.Store, registry RevocationRegistry) (*Service, error) {
	if tokens == nil || store == nil || registry == nil {
		return nil, ErrConfig
	}

	dummy, err := identity.HashPassword("bazaar-timing-equalizer-0")
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:       cfg,
		tokens:    tokens,
		store:     store,
		registry:  registry,
		dummyHash: dummy,
	}, nil
}

// Register creates an account and logs it in, returning the new user together
// with a fresh session token.
//
// Only self-assignable roles are accepted; an admin request is rejected, not
// silently downgraded. Duplicate username/email surfaces as the store's
// ConflictError, with storage-level uniqueness as the final authority under
// concurrent registration.
func (s *Service) Register(ctx context.Context, now time.Time, in RegisterInput) (identity.User, Issued, error) {
	role := in.Role
	if role == "" {
		role = identity.RoleUser
	}
	if !role.SelfAssignable() {
		return identity.User{}, Issued{}, identity.OpError{
			Op:   "session.Register",
			Kind: identity.ErrInvalidInput,
			Msg:  "role is not self-assignable",
		}
	}

	hash, err := identity.HashPassword(in.Password)
	if err != nil {
		return identity.User{}, Issued{}, err
	}

	user, err := s.store.CreateUser(ctx, identity.CreateUserInput{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         role,
		Now:          now,
	})
	if err != nil {
		return identity.User{}, Issued{}, err
	}

	issued, err := s.Issue(user, now)
	if err != nil {
		return identity.User{}, Issued{}, err
	}
	return user, issued, nil
}

// Login verifies credentials and issues a session token.
//
// Every verification failure (unknown login key, wrong password) returns
// ErrInvalidCredentials with no further detail. When the account does not
// exist a dummy digest is still verified so the miss is not observably
// faster than a mismatch.
func (s *Service) Login(ctx context.Context, now time.Time, in LoginInput) (identity.User, Issued, error) {
	auth, err := s.store.GetUserAuthByLogin(ctx, in.Username, in.Email)
	if err != nil {
		if identity.IsNotFound(err) || identity.IsInvalidInput(err) {
			_, _ = identity.VerifyPassword(in.Password, s.dummyHash)
			return identity.User{}, Issued{}, ErrInvalidCredentials
		}
		return identity.User{}, Issued{}, err
	}

	ok, err := identity.VerifyPassword(in.Password, auth.PasswordHash)
	if err != nil {
		return identity.User{}, Issued{}, err
	}
	if !ok {
		return identity.User{}, Issued{}, ErrInvalidCredentials
	}

	issued, err := s.Issue(auth.User, now)
	if err != nil {
		return identity.User{}, Issued{}, err
	}
	return auth.User, issued, nil
}

// Issue signs a session token for an already-authenticated user.
func (s *Service) Issue(user identity.User, now time.Time) (Issued, error) {
	token, exp, err := s.tokens.Issue(Claims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}, now)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: token, ExpiresAt: exp}, nil
}

// Validate checks a presented token and resolves it to a live account.
//
// Order of checks: signature and expiry first, then the revocation registry,
// then a fresh identity read. Validation fails closed: if the registry cannot
// answer, the token is not accepted and ErrRegistryUnavailable is returned.
// The fresh read means role or profile changes take effect on the next
// request, not at the next login.
func (s *Service) Validate(ctx context.Context, token string, now time.Time) (identity.User, Claims, error) {
	claims, err := s.tokens.Verify(token, now)
	if err != nil {
		return identity.User{}, Claims{}, ErrInvalidToken
	}

	revoked, err := s.registry.IsRevoked(ctx, sectoken.DigestCredentialHex(token))
	if err != nil {
		return identity.User{}, Claims{}, ErrRegistryUnavailable
	}
	if revoked {
		return identity.User{}, Claims{}, ErrRevoked
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			// The account vanished after issuance; its tokens die with it.
			return identity.User{}, Claims{}, ErrInvalidToken
		}
		return identity.User{}, Claims{}, err
	}

	return user, claims, nil
}

// Revoke denylists a token for the remainder of its lifetime.
//
// Revoking an already-expired or already-revoked token is a no-op: revocation
// is idempotent and never extends a denylist entry past the token's natural
// expiry. Tokens that fail authenticity checks return ErrInvalidToken;
// callers implementing logout may choose to ignore it.
func (s *Service) Revoke(ctx context.Context, token string, now time.Time) error {
	claims, err := s.tokens.Decode(token)
	if err != nil {
		return ErrInvalidToken
	}

	ttl := claims.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}

	return s.registry.Revoke(ctx, sectoken.DigestCredentialHex(token), ttl)
}

// TokenTTL exposes the configured token lifetime, mainly for cookie expiry.
func (s *Service) TokenTTL() time.Duration { return s.cfg.TokenTTL }
