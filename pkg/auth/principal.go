package auth

import "slices"

// Principal is a resolved caller identity.
type Principal interface {
	// Name returns the caller's unique name. Empty for anonymous callers.
	Name() string

	// AuthenticationType returns the scheme that authenticated the caller.
	AuthenticationType() string

	// IsAuthenticated reports whether the caller was authenticated.
	IsAuthenticated() bool
}

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the unique identifier (required, non-empty).
	Subject string

	// AuthType is the AuthScheme of the link that established the identity.
	AuthType string

	// ServiceTier determines rate limits.
	ServiceTier string

	// Scopes lists the authorization scopes granted.
	Scopes []string

	// Metadata carries scheme-specific data.
	// The key "tenant_id" carries the caller's tenant.
	Metadata map[string]string
}

var _ Principal = (*Identity)(nil)

// Name returns the subject.
func (id *Identity) Name() string {
	if id == nil {
		return ""
	}
	return id.Subject
}

// AuthenticationType returns the scheme that authenticated the identity.
func (id *Identity) AuthenticationType() string {
	if id == nil {
		return ""
	}
	return id.AuthType
}

// IsAuthenticated reports whether the identity has a subject.
func (id *Identity) IsAuthenticated() bool {
	return id != nil && id.Subject != ""
}

// TenantID returns the tenant identifier from metadata, or empty string.
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// HasScope reports whether the identity was granted scope.
func (id *Identity) HasScope(scope string) bool {
	if id == nil {
		return false
	}
	return slices.Contains(id.Scopes, scope)
}

// Anonymous is the principal of a caller nobody has authenticated.
var Anonymous Principal = anonymous{}

type anonymous struct{}

func (anonymous) Name() string               { return "" }
func (anonymous) AuthenticationType() string { return "" }
func (anonymous) IsAuthenticated() bool      { return false }

// isAuthenticated reports whether p is non-nil and authenticated.
func isAuthenticated(p Principal) bool {
	return p != nil && p.IsAuthenticated()
}
