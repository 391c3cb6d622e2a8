package model

import "time"

// Role of an authenticated caller.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// UserClaims is the identity of a caller as issued by the auth provider.
type UserClaims struct {
	UserID    string              `json:"user_id"`
	Role      Role                `json:"role"`
	Tier      string              `json:"tier"`
	Scopes    map[string]struct{} `json:"-"`
	IssuedAt  time.Time           `json:"issued_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// IsAdmin reports whether the caller bypasses access limits.
func (c UserClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// HasScope reports whether the claims grant scope.
func (c UserClaims) HasScope(scope string) bool {
	_, ok := c.Scopes[scope]
	return ok
}

// Expired reports whether the claims are no longer valid at now.
// Zero ExpiresAt never expires.
func (c UserClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
