// Package gate provides capability middleware for chi or net/http
// routers: Unauthenticated callers are cut off with 401, authenticated
// but underprivileged callers with 403. Role tiers nest, so a super
// admin clears every admin gate.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopmesh/auth"
)

// TokenVerifier is the slice of verify.Verifier the gate depends on.
type TokenVerifier interface {
	VerifyRequest(r *http.Request) (auth.Principal, error)
}

// Gate guards routes behind a verifier.
type Gate struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// Option customises a Gate.
type Option func(*Gate)

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// New builds a Gate around the given verifier.
func New(verifier TokenVerifier, opts ...Option) *Gate {
	g := &Gate{
		verifier: verifier,
		logger:   slog.Default().With("module", "gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type ctxKey int

const ctxKeyPrincipal ctxKey = iota

// WithPrincipal returns a context carrying the verified principal.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext returns the principal stored by the gate
// middleware for this request.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(auth.Principal)
	return p, ok
}

// RequireAuthenticated admits any verified end user and stores the
// principal on the request context.
func (g *Gate) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.verifier.VerifyRequest(r)
		if err != nil {
			g.deny(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAdmin admits admins and super admins.
func (g *Gate) RequireAdmin(next http.Handler) http.Handler {
	return g.RequireAuthenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		if !p.HasAdmin() {
			writeDenied(w, http.StatusForbidden, "FORBIDDEN", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// RequireSuperAdmin admits super admins only.
func (g *Gate) RequireSuperAdmin(next http.Handler) http.Handler {
	return g.RequireAuthenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		if !p.IsSuperAdmin {
			writeDenied(w, http.StatusForbidden, "FORBIDDEN", "super admin role required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (g *Gate) deny(w http.ResponseWriter, err error) {
	status, code, message := denialFor(err)
	if status == http.StatusServiceUnavailable {
		g.logger.Warn("verification dependency unavailable", "error", err.Error())
	}
	writeDenied(w, status, code, message)
}

func denialFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, auth.ErrNoToken):
		return http.StatusUnauthorized, "MISSING_TOKEN", "authentication required"
	case errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired"
	case errors.Is(err, auth.ErrTokenRevoked):
		return http.StatusUnauthorized, "TOKEN_REVOKED", "token revoked"
	case errors.Is(err, auth.ErrInactiveAccount):
		return http.StatusForbidden, "ACCOUNT_INACTIVE", "account is inactive"
	case errors.Is(err, auth.ErrServiceScope):
		return http.StatusForbidden, "FORBIDDEN", "end-user credentials required"
	case errors.Is(err, auth.ErrInsufficientScope):
		return http.StatusForbidden, "FORBIDDEN", "insufficient scope"
	case errors.Is(err, auth.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "authentication temporarily unavailable"
	default:
		return http.StatusUnauthorized, "INVALID_TOKEN", "invalid token"
	}
}

func writeDenied(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "error",
		"code":    code,
		"message": message,
	})
}
