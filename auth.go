// Package auth carries the token vocabulary shared by the issuer service
// and every consumer of its tokens: the claim layout on the wire, the
// decoded claim variants, the verified-caller Principal, and the error
// taxonomy that verification surfaces.
//
// Services that only need to check inbound tokens should use the verify
// and gate subpackages; services that call other services should use
// svctoken. This package holds the types those packages exchange.
package auth

// Token scope values. User tokens carry no scope claim; service-to-service
// tokens always carry ScopeService and never resolve to an end user.
const (
	ScopeService = "service"
)

// token_use claim values distinguishing the two halves of a user token pair.
const (
	TokenUseAccess  = "access"
	TokenUseRefresh = "refresh"
)

// CookieName is the cookie the platform uses to carry user access tokens
// to browser-facing services.
const CookieName = "access_token"

// RevokedKeyPrefix is the cache key prefix under which the issuer
// publishes revoked token ids. The full key is RevokedKeyPrefix + jti.
const RevokedKeyPrefix = "revoked:jti:"

// Principal identifies a verified caller. It is the only identity object
// request handlers should consume; raw claims stay inside the verifier.
type Principal struct {
	UserID       int64
	IsAdmin      bool
	IsSuperAdmin bool
	IsActive     bool
	Scope        string
	JTI          string
}

// HasAdmin reports whether the principal clears the admin bar. Super
// admins always do.
func (p Principal) HasAdmin() bool {
	return p.IsAdmin || p.IsSuperAdmin
}
