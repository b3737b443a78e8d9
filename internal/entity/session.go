package entity

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole accepts exactly the wire values "admin" and "user".
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleUser:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Session is an authenticated identity. Subject and ExpiresAt come from the token claims and may
// be zero when the server does not send them.
type Session struct {
	Token     string    `json:"token"`
	Role      Role      `json:"role"`
	Subject   string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// Credentials are what a user types into the login form.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
