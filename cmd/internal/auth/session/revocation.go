package session

import (
	"context"
	"time"
)

// RevocationRegistry is the shared denylist of revoked session tokens.
//
// Keys are credential digests (see cmd/security/token), never raw tokens.
// Entries carry a TTL equal to the token's remaining lifetime: once the
// token would have expired on its own, the entry is free to disappear.
type RevocationRegistry interface {
	// Revoke records key as revoked for ttl. A ttl <= 0 means the token is
	// already past its expiry and the call is a no-op.
	Revoke(ctx context.Context, key string, ttl time.Duration) error

	// IsRevoked reports whether key is currently revoked. A registry error
	// means the answer is unknown; callers decide fail-open vs fail-closed.
	IsRevoked(ctx context.Context, key string) (bool, error)
}
