package cart

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bazaar/cmd/identity"
	authapi "bazaar/cmd/internal/auth/api"
)

// Handler exposes cart operations over HTTP. All routes require a session;
// the auth gate is injected at registration time.
type Handler struct {
	log          *slog.Logger
	svc          *Service
	maxBodyBytes int64
}

// NewHandler constructs a cart Handler.
func NewHandler(log *slog.Logger, svc *Service, maxBodyBytes int64) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if svc == nil {
		return nil, errors.New("cart: nil service")
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handler{log: log, svc: svc, maxBodyBytes: maxBodyBytes}, nil
}

// Register wires cart routes onto the mux, each wrapped by gate.
func (h *Handler) Register(mux *http.ServeMux, gate func(http.Handler) http.Handler) {
	if h == nil || mux == nil || gate == nil {
		return
	}
	mux.Handle("/api/cart", gate(http.HandlerFunc(h.handleCart)))
	mux.Handle("/api/cart/items", gate(http.HandlerFunc(h.handleItems)))
	mux.Handle("/api/cart/items/", gate(http.HandlerFunc(h.handleItemByID)))
}

type addItemRequest struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type itemResponse struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
}

type cartResponse struct {
	Items      []itemResponse `json:"items"`
	TotalCents int64          `json:"totalCents"`
}

func toCartResponse(c Cart) cartResponse {
	out := cartResponse{
		Items:      make([]itemResponse, 0, len(c.Items)),
		TotalCents: c.TotalCents(),
	}
	for _, it := range c.Items {
		out.Items = append(out.Items, itemResponse{
			ProductID:      it.ProductID,
			Name:           it.Name,
			UnitPriceCents: it.UnitPriceCents,
			Quantity:       it.Quantity,
		})
	}
	return out
}

func (h *Handler) handleCart(w http.ResponseWriter, r *http.Request) {
	p, ok := authapi.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, err := h.svc.Get(r.Context(), p.User.ID)
		if err != nil {
			h.writeCartError(w, "cart.get", err)
			return
		}
		writeJSON(w, http.StatusOK, toCartResponse(c))

	case http.MethodDelete:
		if err := h.svc.Clear(r.Context(), p.User.ID); err != nil {
			h.writeCartError(w, "cart.clear", err)
			return
		}
		writeJSON(w, http.StatusOK, toCartResponse(Cart{UserID: p.User.ID}))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	p, ok := authapi.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req addItemRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	c, err := h.svc.AddItem(r.Context(), time.Now().UTC(), p.User.ID, AddItemInput{
		ProductID:      req.ProductID,
		Name:           req.Name,
		UnitPriceCents: req.UnitPriceCents,
		Quantity:       req.Quantity,
	})
	if err != nil {
		h.writeCartError(w, "cart.add_item", err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleItemByID(w http.ResponseWriter, r *http.Request) {
	p, ok := authapi.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	productID := strings.TrimPrefix(r.URL.Path, "/api/cart/items/")
	if productID == "" || strings.ContainsRune(productID, '/') {
		writeError(w, http.StatusNotFound, "not_found", "cart item not found")
		return
	}

	switch r.Method {
	case http.MethodPut, http.MethodPatch:
		var req setQuantityRequest
		if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		c, err := h.svc.SetQuantity(r.Context(), time.Now().UTC(), p.User.ID, productID, req.Quantity)
		if err != nil {
			h.writeCartError(w, "cart.set_quantity", err)
			return
		}
		writeJSON(w, http.StatusOK, toCartResponse(c))

	case http.MethodDelete:
		c, err := h.svc.SetQuantity(r.Context(), time.Now().UTC(), p.User.ID, productID, 0)
		if err != nil {
			h.writeCartError(w, "cart.remove_item", err)
			return
		}
		writeJSON(w, http.StatusOK, toCartResponse(c))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) writeCartError(w http.ResponseWriter, op string, err error) {
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

// ---- local JSON plumbing ----

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
