package model

import (
	"slices"
	"time"
)

// Scopes an extension API key can carry. Admin implies the others.
const (
	ScopeRead      = "read"
	ScopeExtension = "extension"
	ScopeAdmin     = "admin"
)

// ValidScopes lists every scope a key may be issued with.
var ValidScopes = []string{ScopeRead, ScopeExtension, ScopeAdmin}

// Auth methods recorded on a Principal.
const (
	AuthMethodJWT    = "jwt"
	AuthMethodAPIKey = "api_key"
)

// APIKey is a long-lived credential used by the companion browser extension.
type APIKey struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	Scopes     []string   `json:"scopes"`
	Name       string     `json:"name,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsRevoked reports whether the key was revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// HasScope reports whether the key grants scope.
func (k *APIKey) HasScope(scope string) bool {
	return hasScope(k.Scopes, scope)
}

// Principal is the authenticated caller, injected into the request context
// by the auth middlewares.
type Principal struct {
	UserID     string
	Email      string
	AuthMethod string
	KeyID      string
	KeyPrefix  string
	Scopes     []string
}

// HasScope reports whether the caller may use scope. Dashboard sessions
// carry every scope.
func (p *Principal) HasScope(scope string) bool {
	if p.AuthMethod == AuthMethodJWT {
		return true
	}
	return hasScope(p.Scopes, scope)
}

func hasScope(scopes []string, scope string) bool {
	if slices.Contains(scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(scopes, scope)
}
