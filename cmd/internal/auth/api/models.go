package authapi

import (
	"strings"
	"time"

	"bazaar/cmd/identity"
)

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type addAddressRequest struct {
	Street     string  `json:"street"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postalCode"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone"`
	IsDefault  bool    `json:"isDefault"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type authResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

type addressResponse struct {
	ID         string    `json:"id"`
	Street     string    `json:"street"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postalCode"`
	Country    string    `json:"country"`
	Phone      *string   `json:"phone,omitempty"`
	IsDefault  bool      `json:"isDefault"`
	CreatedAt  time.Time `json:"createdAt"`
}

type addressListResponse struct {
	Addresses []addressResponse `json:"addresses"`
}

// addressCreatedResponse carries the newly created entry, with its assigned
// id, alongside the updated book.
type addressCreatedResponse struct {
	Address   addressResponse   `json:"address"`
	Addresses []addressResponse `json:"addresses"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func toAddressResponse(a identity.Address) addressResponse {
	return addressResponse{
		ID:         a.ID,
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
		IsDefault:  a.IsDefault,
		CreatedAt:  a.CreatedAt,
	}
}

func toAddressListResponse(addrs []identity.Address) addressListResponse {
	out := addressListResponse{Addresses: make([]addressResponse, 0, len(addrs))}
	for _, a := range addrs {
		out.Addresses = append(out.Addresses, toAddressResponse(a))
	}
	return out
}

// validateRegister normalizes and validates a registration request.
// Returns a human-readable problem string, empty when valid.
func validateRegister(req *registerRequest) string {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))

	if len(req.Username) < 3 {
		return "username must be at least 3 characters"
	}
	if !looksLikeEmail(req.Email) {
		return "a valid email is required"
	}
	if req.Password == "" {
		return "password is required"
	}
	if req.Role != "" && !identity.Role(req.Role).SelfAssignable() {
		return "role must be user or seller"
	}
	return ""
}

func validateLogin(req *loginRequest) string {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" && req.Email == "" {
		return "username or email is required"
	}
	if req.Password == "" {
		return "password is required"
	}
	return ""
}

// looksLikeEmail is a cheap shape check; the mailbox's real existence is not
// this service's problem.
func looksLikeEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	domain := s[at+1:]
	if strings.IndexByte(domain, '@') >= 0 {
		return false
	}
	dot := strings.IndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}
