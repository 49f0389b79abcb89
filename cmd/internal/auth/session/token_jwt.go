package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bazaar/cmd/identity"
)

// Claims is the identity envelope embedded in a session token.
//
// The claims are a hint, not an authority: Validate re-reads the account from
// the identity store and overrides anything the token asserts.
type Claims struct {
	UserID   string
	Username string
	Email    string
	Role     identity.Role

	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
}

// CredentialCodec issues and verifies signed session tokens.
//
// Decode checks authenticity (signature, issuer) but not expiry; revocation
// uses it so an expired token can still be recognized and no-op'd instead of
// being indistinguishable from a forgery.
type CredentialCodec interface {
	Issue(c Claims, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (Claims, error)
	Decode(token string) (Claims, error)
}

// wireClaims is the JWT representation of Claims.
type wireClaims struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type jwtCodec struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
	secret    []byte
}

// NewJWTCodec builds a CredentialCodec signing with HS256.
//
// Verification pins the signing method to HS256 so a forged token cannot
// select a weaker algorithm, enforces the issuer, and tolerates ClockSkew
// of clock drift on the time-based claims.
func NewJWTCodec(cfg Config) (CredentialCodec, error) {
	if len(cfg.SecretKey) < MinSecretBytes {
		return nil, ErrConfig
	}
	if cfg.TokenTTL <= 0 || cfg.Issuer == "" {
		return nil, ErrConfig
	}

	return &jwtCodec{
		issuer:    cfg.Issuer,
		ttl:       cfg.TokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    cfg.SecretKey,
	}, nil
}

func (c *jwtCodec) Issue(in Claims, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.ttl)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, wireClaims{
		Username: in.Username,
		Email:    in.Email,
		Role:     string(in.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   in.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (c *jwtCodec) Verify(token string, now time.Time) (Claims, error) {
	var wc wireClaims

	parsed, err := jwt.ParseWithClaims(token, &wc,
		c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	return claimsFromWire(&wc)
}

// Decode verifies the signature and issuer but deliberately skips the
// time-based claims, so an expired token still decodes.
func (c *jwtCodec) Decode(token string) (Claims, error) {
	var wc wireClaims

	_, err := jwt.ParseWithClaims(token, &wc,
		c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if wc.Issuer != c.issuer || wc.ExpiresAt == nil {
		return Claims{}, ErrInvalidToken
	}

	return claimsFromWire(&wc)
}

func (c *jwtCodec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return c.secret, nil
}

func claimsFromWire(wc *wireClaims) (Claims, error) {
	if wc.Subject == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		UserID:   wc.Subject,
		Username: wc.Username,
		Email:    wc.Email,
		Role:     identity.Role(wc.Role),
		Issuer:   wc.Issuer,
	}
	if wc.IssuedAt != nil {
		out.IssuedAt = wc.IssuedAt.Time
	}
	if wc.ExpiresAt != nil {
		out.ExpiresAt = wc.ExpiresAt.Time
	}
	return out, nil
}
