package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestPeekExpiryReadsExpWithoutVerifying(t *testing.T) {
	t.Parallel()

	exp := time.Now().UTC().Add(20 * time.Minute).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "checkout-service",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	raw, err := token.SignedString([]byte("key-the-peeker-never-sees"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}

	got, err := PeekExpiry(raw)
	if err != nil {
		t.Fatalf("PeekExpiry returned error: %v", err)
	}
	if !got.Equal(exp) {
		t.Fatalf("expected %v, got %v", exp, got)
	}
}

func TestPeekExpiryRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := PeekExpiry("not-a-token"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestPeekExpiryRejectsMissingExp(t *testing.T) {
	t.Parallel()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"})
	raw, err := token.SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	if _, err := PeekExpiry(raw); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken for missing exp, got %v", err)
	}
}
