package ports

import "github.com/shopmesh/auth"

// PasswordHasher compares and derives bcrypt hashes. It covers user
// passwords and service client secrets alike.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) error
}

// TokenSigner signs and validates the platform's token claim set. One
// signer, and therefore one signature scheme, serves a deployment.
type TokenSigner interface {
	Sign(claims auth.JWTClaims) (string, error)

	// ParseAndValidate checks signature and time claims and returns the
	// wire claims. Expired tokens surface domain.ErrTokenExpired, every
	// other failure domain.ErrUnauthorized.
	ParseAndValidate(token string) (auth.JWTClaims, error)

	// PublicJWKs lists the public keys in JWKS form. Empty for
	// shared-secret schemes, which have nothing to publish.
	PublicJWKs() ([]map[string]any, error)
}
