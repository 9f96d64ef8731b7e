package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PeekExpiry reads the exp claim of a token WITHOUT verifying its
// signature. It exists for one purpose: a client that just received a
// token from the issuer it called needs the expiry to size a cache TTL.
// Never use it on a credential presented by someone else; that is what
// verify.Verifier is for.
func PeekExpiry(raw string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: no exp claim", ErrMalformedToken)
	}
	return claims.ExpiresAt.Time, nil
}
