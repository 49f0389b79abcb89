// Package session is bazaar's session authority.
//
// It turns verified credentials into signed, self-contained session tokens
// (JWT, HS256), validates presented tokens against both their signature and
// a shared revocation registry, and revokes tokens ahead of their natural
// expiry. The registry is the only mutable state; everything else a token
// asserts is re-read from the identity store at validation time.
package session
