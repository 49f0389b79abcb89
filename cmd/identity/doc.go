// Package identity defines bazaar's canonical account domain: users with
// unique login keys (username and email), their password digests, and the
// embedded address book.
//
// The package owns the persistence boundary (Store) and its Postgres and
// in-memory implementations. Higher layers (session authority, address
// book, HTTP API) depend on the Store interface only.
package identity
