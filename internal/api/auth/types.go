package auth

import (
	"fmt"
	"strings"
)

// Permission represents an API permission
type Permission string

const (
	// PermissionCacheRead allows lookups and key listing
	PermissionCacheRead Permission = "cache.read"
	// PermissionCacheWrite allows set and remove; implies read
	PermissionCacheWrite Permission = "cache.write"
	// PermissionCacheAdmin allows clear, snapshots and checkpoints; implies write
	PermissionCacheAdmin Permission = "cache.admin"
)

// AllPermissions lists every permission from weakest to strongest
var AllPermissions = []Permission{
	PermissionCacheRead,
	PermissionCacheWrite,
	PermissionCacheAdmin,
}

func (p Permission) level() int {
	switch p {
	case PermissionCacheRead:
		return 1
	case PermissionCacheWrite:
		return 2
	case PermissionCacheAdmin:
		return 3
	default:
		return 0
	}
}

// Implies reports whether holding p grants required
func (p Permission) Implies(required Permission) bool {
	return p.level() > 0 && p.level() >= required.level()
}

// ParsePermission parses a permission name. The "cache." prefix is optional.
func ParsePermission(s string) (Permission, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(name, "cache.") {
		name = "cache." + name
	}
	p := Permission(name)
	if p.level() == 0 {
		return "", fmt.Errorf("unknown permission: %q", s)
	}
	return p, nil
}

// APIToken represents an API token with its metadata
type APIToken struct {
	// TokenHash is the hashed token value (never store plain tokens)
	TokenHash string
	// Name identifies the token in logs
	Name string
	// Permissions is the list of permissions granted
	Permissions []Permission
	// CreatedAt is when the token was created
	CreatedAt int64 // Unix timestamp
	// ExpiresAt is when the token expires (0 means no expiration)
	ExpiresAt int64 // Unix timestamp
}

// HasPermission checks if the token grants a specific permission
func (t *APIToken) HasPermission(perm Permission) bool {
	return hasPermission(t.Permissions, perm)
}

// IsExpired checks if the token is expired
func (t *APIToken) IsExpired(now int64) bool {
	if t.ExpiresAt == 0 {
		return false // No expiration
	}
	return now >= t.ExpiresAt
}

// AuthContext contains authentication and authorization context for a request
type AuthContext struct {
	// TokenHash is the hashed token that authenticated this request
	TokenHash string
	// Name is the token name
	Name string
	// Permissions are the granted permissions
	Permissions []Permission
}

// NewAuthContext builds the request context of an authenticated token
func NewAuthContext(token *APIToken) *AuthContext {
	return &AuthContext{
		TokenHash:   token.TokenHash,
		Name:        token.Name,
		Permissions: token.Permissions,
	}
}

// HasPermission checks if the auth context grants a specific permission
func (c *AuthContext) HasPermission(perm Permission) bool {
	return hasPermission(c.Permissions, perm)
}

func hasPermission(granted []Permission, perm Permission) bool {
	for _, p := range granted {
		if p.Implies(perm) {
			return true
		}
	}
	return false
}
