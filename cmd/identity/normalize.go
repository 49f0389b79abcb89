package identity

import "strings"

// NormalizeUsername canonicalizes a username for uniqueness and login
// matching: "Amara" and "amara" are the same account. The normalized form is
// stored alongside the display form (username_norm) and is what the unique
// index and GetUserAuthByLogin compare against.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail canonicalizes an email the same way. Deliberately no
// provider-specific rewriting (gmail dots, plus-addressing); the address is
// treated as an opaque case-insensitive login key.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
