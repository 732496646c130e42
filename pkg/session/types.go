package session

import (
	"time"
)

// User roles, mirroring the role enum in the user table
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleImam       = "imam"
	RoleBendahara  = "bendahara"
	RoleJamaah     = "jamaah"
)

// User is the slice of the user record the pipeline needs: enough to decide
// authorization and render a navbar, nothing more.
type User struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	FullName      string     `json:"full_name,omitempty"`
	Role          string     `json:"role"`
	AvatarURL     string     `json:"avatar_url,omitempty"`
	EmailVerified *time.Time `json:"email_verified,omitempty"`
}

// IsEmailVerified reports whether the user completed email verification
func (u *User) IsEmailVerified() bool {
	return u != nil && u.EmailVerified != nil
}

// Session represents one browser session row
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`

	// Extended reports whether this lookup slid the expiry forward.
	// Request-scoped bookkeeping, never persisted.
	Extended bool `json:"-"`
}

// Identity is the per-request resolution result. Both fields are nil for
// anonymous requests; both are set for authenticated ones. It lives only in
// the request context and is never persisted.
type Identity struct {
	User    *User
	Session *Session
}

// IsAuthenticated reports whether a user was resolved for this request
func (id *Identity) IsAuthenticated() bool {
	return id != nil && id.User != nil
}
