package authapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bazaar/cmd/identity"
	"bazaar/cmd/internal/auth/session"
)

// Principal is the authenticated caller attached to a request's context by
// RequireSession. User is the fresh store read, not the token's claims.
type Principal struct {
	User   identity.User
	Claims session.Claims
}

type principalKey struct{}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// RequireSession gates next behind a valid session token.
//
// Every rejection reason a caller could probe (missing token, bad signature,
// expiry, revocation, vanished account) collapses into one 401. Backend
// outages are the exception: a revocation-registry or identity-store failure
// answers 503, which is an operational signal, not an authorization one.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.sessionToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}

		user, claims, err := h.sessions.Validate(r.Context(), token, time.Now().UTC())
		if err != nil {
			if errors.Is(err, session.ErrRegistryUnavailable) || identity.IsUnavailable(err) {
				h.log.Error("auth.gate.backend.fail", "err", err)
				writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
				return
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, Principal{User: user, Claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
