package gate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopmesh/auth"
)

type fakeVerifier struct {
	principal auth.Principal
	err       error
}

func (f fakeVerifier) VerifyRequest(*http.Request) (auth.Principal, error) {
	return f.principal, f.err
}

func okHandler(t *testing.T, sawPrincipal *auth.Principal) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := PrincipalFromContext(r.Context()); ok {
			*sawPrincipal = p
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func do(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders", nil))
	return rec
}

func TestRequireAuthenticated(t *testing.T) {
	t.Parallel()

	var seen auth.Principal
	g := New(fakeVerifier{principal: auth.Principal{UserID: 7, IsActive: true, JTI: "j"}})
	rec := do(t, g.RequireAuthenticated(okHandler(t, &seen)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen.UserID != 7 || seen.JTI != "j" {
		t.Fatalf("principal not propagated, got %+v", seen)
	}
}

func TestRequireAuthenticatedDenials(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing token", auth.ErrNoToken, http.StatusUnauthorized, "MISSING_TOKEN"},
		{"expired", auth.ErrExpiredToken, http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"revoked", auth.ErrTokenRevoked, http.StatusUnauthorized, "TOKEN_REVOKED"},
		{"bad signature", auth.ErrInvalidSignature, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"inactive", auth.ErrInactiveAccount, http.StatusForbidden, "ACCOUNT_INACTIVE"},
		{"service token", auth.ErrServiceScope, http.StatusForbidden, "FORBIDDEN"},
		{"revocation outage", auth.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var seen auth.Principal
			g := New(fakeVerifier{err: tc.err})
			rec := do(t, g.RequireAuthenticated(okHandler(t, &seen)))
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			var body struct {
				Status string `json:"status"`
				Code   string `json:"code"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if body.Status != "error" || body.Code != tc.wantCode {
				t.Fatalf("expected error code %q, got %+v", tc.wantCode, body)
			}
			if seen.UserID != 0 {
				t.Fatalf("handler must not run on denial")
			}
		})
	}
}

func TestRoleTiers(t *testing.T) {
	t.Parallel()

	regular := auth.Principal{UserID: 1, IsActive: true}
	admin := auth.Principal{UserID: 2, IsAdmin: true, IsActive: true}
	super := auth.Principal{UserID: 3, IsSuperAdmin: true, IsActive: true}

	cases := []struct {
		name      string
		principal auth.Principal
		gate      func(*Gate, http.Handler) http.Handler
		want      int
	}{
		{"regular user fails admin gate", regular, (*Gate).RequireAdmin, http.StatusForbidden},
		{"admin passes admin gate", admin, (*Gate).RequireAdmin, http.StatusNoContent},
		{"super admin passes admin gate", super, (*Gate).RequireAdmin, http.StatusNoContent},
		{"admin fails super admin gate", admin, (*Gate).RequireSuperAdmin, http.StatusForbidden},
		{"super admin passes super admin gate", super, (*Gate).RequireSuperAdmin, http.StatusNoContent},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var seen auth.Principal
			g := New(fakeVerifier{principal: tc.principal})
			rec := do(t, tc.gate(g, okHandler(t, &seen)))
			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
