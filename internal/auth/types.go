package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of privilege levels a user can hold.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole normalises s and rejects anything outside the enumeration.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Is compares roles case-insensitively.
func (r Role) Is(other Role) bool {
	return strings.EqualFold(strings.TrimSpace(string(r)), strings.TrimSpace(string(other)))
}

func (r Role) String() string { return string(r) }

// bootstrapRole decides the role of a new account from the number of existing ones.
func bootstrapRole(existing int64) Role {
	if existing == 0 {
		return RoleAdmin
	}
	return RoleUser
}

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Source names the path that authenticated a request.
type Source string

const (
	SourceSession Source = "session"
	SourceToken   Source = "token"
)

// Identity is the request-scoped result of authentication. It looks the same
// whether a session or a token produced it.
type Identity struct {
	ID     string `json:"id"`
	Role   Role   `json:"role"`
	Email  string `json:"email,omitempty"`
	Source Source `json:"source"`
}

// ExpiryPolicy selects how long a session lives.
type ExpiryPolicy int

const (
	// Ephemeral sessions end with the client runtime (no cookie Max-Age).
	Ephemeral ExpiryPolicy = iota
	// Extended sessions survive client restarts for ExtendedSessionTTL.
	Extended
)

// ExtendedSessionTTL is the lifetime of a "remember me" session.
const ExtendedSessionTTL = 30 * 24 * time.Hour

func (p ExpiryPolicy) String() string {
	if p == Extended {
		return "extended"
	}
	return "ephemeral"
}

// SessionData is the server-held state behind a session id.
type SessionData struct {
	UserID        string
	Role          Role
	Authenticated bool
	ForgerySecret string
	Policy        ExpiryPolicy
}
