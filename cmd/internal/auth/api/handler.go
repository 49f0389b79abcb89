package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bazaar/cmd/identity"
	"bazaar/cmd/internal/addressbook"
	"bazaar/cmd/internal/auth/session"
)

// Metrics counts auth events; the app layer provides a Prometheus-backed
// implementation.
type Metrics interface {
	AuthEvent(event, outcome string)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) AuthEvent(string, string) {}

// Handler wires HTTP auth endpoints to the session authority and address book.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions  *session.Service
	addresses *addressbook.Service

	audit   *Auditor
	metrics Metrics
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithAuditor enables auth_audit recording.
func WithAuditor(a *Auditor) HandlerOption {
	return func(h *Handler) {
		if h == nil || a == nil {
			return
		}
		h.audit = a
	}
}

// WithMetrics overrides the default no-op metrics sink.
func WithMetrics(m Metrics) HandlerOption {
	return func(h *Handler) {
		if h == nil || m == nil {
			return
		}
		h.metrics = m
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, addresses *addressbook.Service, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil || addresses == nil {
		return nil, errors.New("authapi: nil session or addressbook service")
	}

	h := &Handler{
		log:       log,
		cfg:       cfg,
		sessions:  sessions,
		addresses: addresses,
		metrics:   NoopMetrics{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.Handle("/api/auth/me", h.RequireSession(http.HandlerFunc(h.handleMe)))
	mux.Handle("/api/auth/users/me/addresses", h.RequireSession(http.HandlerFunc(h.handleAddresses)))
	mux.Handle("/api/auth/users/me/addresses/", h.RequireSession(http.HandlerFunc(h.handleAddressByID)))
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if problem := validateRegister(&req); problem != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", problem)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	user, issued, err := h.sessions.Register(ctx, now, session.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      identity.Role(req.Role),
	})
	if err != nil {
		h.metrics.AuthEvent("register", "failure")
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "conflict", "username or email already exists")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		case identity.IsUnavailable(err):
			h.log.Error("auth.register.unavailable", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.metrics.AuthEvent("register", "success")
	h.audit.registerSuccess(ctx, user.ID, clientIP(r, h.cfg.TrustProxy), r.UserAgent())

	h.setSessionCookie(w, issued.Token, issued.ExpiresAt)
	writeJSON(w, http.StatusCreated, authResponse{
		User:    toUserResponse(user),
		Session: sessionResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt},
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if problem := validateLogin(&req); problem != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", problem)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())
	identifier := loginIdentifier(req.Username, req.Email)

	user, issued, err := h.sessions.Login(ctx, now, session.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			h.metrics.AuthEvent("login", "failure")
			h.audit.loginFailed(ctx, ip, ua, identifier)
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		if identity.IsUnavailable(err) {
			h.log.Error("auth.login.unavailable", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
			return
		}
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.AuthEvent("login", "success")
	h.audit.loginSuccess(ctx, user.ID, ip, ua, identifier)

	h.setSessionCookie(w, issued.Token, issued.ExpiresAt)
	writeJSON(w, http.StatusOK, authResponse{
		User:    toUserResponse(user),
		Session: sessionResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt},
	})
}

// handleLogout revokes the presented token. Logout fails open: a missing,
// malformed or already-dead token still yields 200, since the caller's goal
// (not being logged in) is already met. Registry write failures are logged
// and also reported as success rather than trapping the user in a session.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	var userID *string
	if token := h.sessionToken(r); token != "" {
		if _, claims, err := h.sessions.Validate(ctx, token, now); err == nil {
			userID = &claims.UserID
		}
		if err := h.sessions.Revoke(ctx, token, now); err != nil && !errors.Is(err, session.ErrInvalidToken) {
			h.log.Error("auth.logout.revoke.fail", "err", err)
		}
	}

	h.metrics.AuthEvent("logout", "success")
	h.audit.logout(ctx, userID, clientIP(r, h.cfg.TrustProxy), r.UserAgent())

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(p.User)})
}

func (h *Handler) handleAddresses(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		addrs, err := h.addresses.List(r.Context(), p.User.ID)
		if err != nil {
			h.writeAddressError(w, "auth.addresses.list", err)
			return
		}
		writeJSON(w, http.StatusOK, toAddressListResponse(addrs))

	case http.MethodPost:
		var req addAddressRequest
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}

		created, addrs, err := h.addresses.Add(r.Context(), time.Now().UTC(), p.User.ID, addressbook.AddInput{
			Street:     req.Street,
			City:       req.City,
			State:      req.State,
			PostalCode: req.PostalCode,
			Country:    req.Country,
			Phone:      req.Phone,
			SetDefault: req.IsDefault,
		})
		if err != nil {
			h.writeAddressError(w, "auth.addresses.add", err)
			return
		}
		writeJSON(w, http.StatusCreated, addressCreatedResponse{
			Address:   toAddressResponse(created),
			Addresses: toAddressListResponse(addrs).Addresses,
		})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAddressByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	addressID := strings.TrimPrefix(r.URL.Path, "/api/auth/users/me/addresses/")
	if addressID == "" || strings.ContainsRune(addressID, '/') {
		writeError(w, http.StatusNotFound, "not_found", "address not found")
		return
	}

	remaining, err := h.addresses.Remove(r.Context(), p.User.ID, addressID)
	if err != nil {
		h.writeAddressError(w, "auth.addresses.remove", err)
		return
	}
	writeJSON(w, http.StatusOK, toAddressListResponse(remaining))
}

// ---- helpers ----

func (h *Handler) writeAddressError(w http.ResponseWriter, op string, err error) {
	switch {
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case identity.IsUnavailable(err):
		h.log.Error(op+".unavailable", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
	default:
		h.log.Error(op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func loginIdentifier(username, email string) string {
	if username != "" {
		return identity.NormalizeUsername(username)
	}
	return identity.NormalizeEmail(email)
}
