package types

import (
	"sort"
	"strings"
	"time"
)

// Role names used by the default policy tables.
const (
	RoleAdmin     = "admin"
	RoleRegistrar = "registrar"
	RoleTeacher   = "teacher"
	RoleBursar    = "bursar"
	RoleParent    = "parent"
	RoleStudent   = "student"
)

// Principal is the authenticated identity attached to a request.
// Roles is kept sorted and de-duplicated; treat it as read-only.
type Principal struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// NewPrincipal builds a Principal with a normalized role set.
func NewPrincipal(id int64, username string, roles ...string) Principal {
	return Principal{
		ID:       id,
		Username: username,
		Roles:    NormalizeRoles(roles),
	}
}

// IsAnonymous reports whether p is the empty principal handed to public routes.
func (p Principal) IsAnonymous() bool {
	return p.ID == 0 && p.Username == "" && len(p.Roles) == 0
}

// HasRole reports whether p holds role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether p holds at least one of roles.
func (p Principal) HasAnyRole(roles []string) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

// PrimaryRole returns the first role, used for the single-valued "role" claim.
func (p Principal) PrimaryRole() string {
	if len(p.Roles) == 0 {
		return ""
	}
	return p.Roles[0]
}

// NormalizeRoles trims, lowercases, de-duplicates and sorts a role list.
func NormalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// CredentialKind tags the scheme a Credential belongs to.
type CredentialKind string

const (
	CredentialBearer  CredentialKind = "bearer"
	CredentialAPIKey  CredentialKind = "api_key"
	CredentialSession CredentialKind = "session"
)

// Credential is raw proof of identity presented by a caller.
type Credential struct {
	Kind  CredentialKind
	Value string
}

// String never prints the secret value.
func (c Credential) String() string {
	return string(c.Kind) + ":<redacted>"
}

// Session is a server-side session bound to an authenticated user.
type Session struct {
	ID        string    `json:"id"`
	Principal Principal `json:"principal"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// APIKey is a keyed client record. Only the bcrypt hash of the key is stored.
type APIKey struct {
	ID        string    `json:"id" db:"id"`
	Prefix    string    `json:"prefix" db:"key_prefix"`
	Hash      string    `json:"-" db:"key_hash"`
	Principal Principal `json:"principal"`
	Revoked   bool      `json:"revoked" db:"revoked"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AuthToken represents an issued token returned to clients
type AuthToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Credentials represents user login credentials
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is an account in the user directory
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Roles        []string  `json:"roles" db:"roles"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Principal returns the identity a successful login resolves to
func (u *User) Principal() Principal {
	return NewPrincipal(u.ID, u.Username, u.Roles...)
}
