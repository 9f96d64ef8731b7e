package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shopmesh/auth"
	"github.com/shopmesh/auth/internal/domain"
)

func accessClaims(ttl time.Duration) auth.JWTClaims {
	now := time.Now().UTC()
	active := true
	return auth.JWTClaims{
		TokenUse: auth.TokenUseAccess,
		IsAdmin:  true,
		IsActive: &active,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ID:        "a2a3bfaa-0000-0000-0000-00000000abcd",
			Issuer:    "shopmesh-auth",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestRS256SignerRoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralRS256Signer("test-key-1")
	if err != nil {
		t.Fatalf("building signer: %v", err)
	}

	claims := accessClaims(15 * time.Minute)
	raw, err := signer.Sign(claims)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	parsed, err := signer.ParseAndValidate(raw)
	if err != nil {
		t.Fatalf("ParseAndValidate returned error: %v", err)
	}
	if parsed.Subject != "42" || parsed.ID != claims.ID {
		t.Fatalf("claims did not survive the round trip: %+v", parsed)
	}
	if !parsed.IsAdmin || parsed.IsActive == nil || !*parsed.IsActive {
		t.Fatalf("flag claims did not survive the round trip: %+v", parsed)
	}
	if parsed.TokenUse != auth.TokenUseAccess {
		t.Fatalf("expected token_use access, got %q", parsed.TokenUse)
	}
}

func TestRS256SignerRejectsTampering(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralRS256Signer("")
	if err != nil {
		t.Fatalf("building signer: %v", err)
	}
	raw, err := signer.Sign(accessClaims(15 * time.Minute))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	parts := strings.Split(raw, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := signer.ParseAndValidate(tampered); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for tampered token, got %v", err)
	}
}

func TestRS256SignerRejectsExpired(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralRS256Signer("")
	if err != nil {
		t.Fatalf("building signer: %v", err)
	}
	raw, err := signer.Sign(accessClaims(-5 * time.Minute))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if _, err := signer.ParseAndValidate(raw); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRS256PublicJWKsShape(t *testing.T) {
	t.Parallel()

	signer, err := NewEphemeralRS256Signer("rotation-2026-01")
	if err != nil {
		t.Fatalf("building signer: %v", err)
	}
	keys, err := signer.PublicJWKs()
	if err != nil {
		t.Fatalf("PublicJWKs returned error: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected one JWK, got %d", len(keys))
	}
	key := keys[0]
	if key["kid"] != "rotation-2026-01" || key["kty"] != "RSA" || key["alg"] != "RS256" {
		t.Fatalf("unexpected JWK header fields: %+v", key)
	}
	if key["n"] == "" || key["e"] == "" {
		t.Fatalf("JWK must carry modulus and exponent: %+v", key)
	}
}

func TestHS256SignerRoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := NewHS256Signer(strings.Repeat("s", 32))
	if err != nil {
		t.Fatalf("building signer: %v", err)
	}

	raw, err := signer.Sign(accessClaims(15 * time.Minute))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	parsed, err := signer.ParseAndValidate(raw)
	if err != nil {
		t.Fatalf("ParseAndValidate returned error: %v", err)
	}
	if parsed.Subject != "42" {
		t.Fatalf("claims did not survive the round trip: %+v", parsed)
	}

	jwks, err := signer.PublicJWKs()
	if err != nil {
		t.Fatalf("PublicJWKs returned error: %v", err)
	}
	if len(jwks) != 0 {
		t.Fatalf("shared-secret scheme must publish no keys, got %d", len(jwks))
	}
}

func TestHS256SignerRequiresStrongSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewHS256Signer("short"); err == nil {
		t.Fatalf("expected secret length validation to fail")
	}
}

func TestSchemesDoNotCrossValidate(t *testing.T) {
	t.Parallel()

	rs, err := NewEphemeralRS256Signer("")
	if err != nil {
		t.Fatalf("building rs256 signer: %v", err)
	}
	hs, err := NewHS256Signer(strings.Repeat("s", 32))
	if err != nil {
		t.Fatalf("building hs256 signer: %v", err)
	}

	rsToken, err := rs.Sign(accessClaims(15 * time.Minute))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if _, err := hs.ParseAndValidate(rsToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("hs256 signer must reject rs256 tokens, got %v", err)
	}

	hsToken, err := hs.Sign(accessClaims(15 * time.Minute))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if _, err := rs.ParseAndValidate(hsToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("rs256 signer must reject hs256 tokens, got %v", err)
	}
}
