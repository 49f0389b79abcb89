// Package token provides credential digest primitives for bazaar.
//
// It is the single source of truth for how raw session credentials are
// digested before being keyed into the revocation denylist.
//
// Design goals:
// - Default dev/back-compat mode: SHA-256(credential) when no HMAC key is configured.
// - Production-enforced mode: HMAC-SHA256(credential, key) when policy requires it.
// - Stable 64-char hex output for storage and constant-time comparison.
//
// Environment:
// - BAZAAR_CREDENTIAL_HMAC_KEY: when set, enables HMAC mode.
// Policy:
//   - If RequireCredentialHMAC=true, callers MUST enforce a minimum key size (>= 32 bytes)
//     and MUST use HMAC (no SHA fallback).
package token
