package core

import (
	"errors"
	"time"
)

// Roles assignable to users.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Principal is the authenticated identity attached to a request by the
// access gate. It is a transient per-request view, never persisted.
type Principal struct {
	ID    string
	Name  string
	Email string
	Role  string
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// User is the public projection of a user record (password hash excluded).
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Authentication / authorization error taxonomy. Each maps to exactly one
// response status: 401 for the first four, 403 for ErrForbidden.
var (
	ErrUnauthenticated   = errors.New("not authorized, no token provided")
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpiredToken      = errors.New("token expired")
	ErrPrincipalNotFound = errors.New("user not found with this token")
	ErrForbidden         = errors.New("not authorized to access this data")

	// ErrInvalidCredentials is returned when email/password is wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// AuthService defines credential-based authentication behaviour.
type AuthService interface {
	Authenticate(email, password string) (User, error)
	Register(name, email, password string) (User, error)
}
