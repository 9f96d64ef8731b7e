package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func boolPtr(v bool) *bool { return &v }

func TestDecodeUserClaims(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	wire := JWTClaims{
		TokenUse:     TokenUseAccess,
		IsAdmin:      true,
		IsActive:     boolPtr(true),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ID:        "9f0c2e1a-0000-0000-0000-000000000001",
			Issuer:    "shopmesh-auth",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
	}

	decoded, err := wire.Decode()
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	user, ok := decoded.(UserClaims)
	if !ok {
		t.Fatalf("expected UserClaims, got %T", decoded)
	}
	if user.UserID != 42 {
		t.Fatalf("expected user id 42, got %d", user.UserID)
	}
	if !user.IsAdmin || user.IsSuperAdmin {
		t.Fatalf("unexpected role flags: %+v", user)
	}
	if !user.IsActive {
		t.Fatalf("expected active account")
	}
	if user.TokenUse != TokenUseAccess {
		t.Fatalf("expected token_use access, got %q", user.TokenUse)
	}
	if !user.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", user.ExpiresAt)
	}
}

func TestDecodeServiceScopeWinsOverNumericSubject(t *testing.T) {
	t.Parallel()

	wire := JWTClaims{
		Scope: ScopeService,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "12345",
			ID:      "9f0c2e1a-0000-0000-0000-000000000002",
		},
	}

	decoded, err := wire.Decode()
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	svc, ok := decoded.(ServiceClaims)
	if !ok {
		t.Fatalf("expected ServiceClaims, got %T", decoded)
	}
	if svc.ClientID != "12345" {
		t.Fatalf("expected client id carried through, got %q", svc.ClientID)
	}
}

func TestDecodeRejectsNonNumericUserSubject(t *testing.T) {
	t.Parallel()

	wire := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "orders-service"},
	}
	if _, err := wire.Decode(); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestDecodeMissingActiveFlagDefaultsToActive(t *testing.T) {
	t.Parallel()

	wire := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "7"},
	}
	decoded, err := wire.Decode()
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if !decoded.(UserClaims).IsActive {
		t.Fatalf("tokens without an is_active claim must decode as active")
	}
}

func TestDecodeInactiveFlagSurvives(t *testing.T) {
	t.Parallel()

	wire := JWTClaims{
		IsActive:         boolPtr(false),
		RegisteredClaims: jwt.RegisteredClaims{Subject: "7"},
	}
	decoded, err := wire.Decode()
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if decoded.(UserClaims).IsActive {
		t.Fatalf("is_active=false must not decode as active")
	}
}

func TestPrincipalFromUserClaims(t *testing.T) {
	t.Parallel()

	claims := UserClaims{UserID: 9, IsSuperAdmin: true, IsActive: true, JTI: "abc"}
	p := claims.Principal()
	if p.UserID != 9 || !p.IsSuperAdmin || p.JTI != "abc" {
		t.Fatalf("principal does not mirror claims: %+v", p)
	}
	if !p.HasAdmin() {
		t.Fatalf("super admin must clear the admin bar")
	}
}
