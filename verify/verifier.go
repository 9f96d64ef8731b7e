// Package verify checks inbound bearer tokens for a single service.
//
// A Verifier is configured once at startup with exactly one signature
// scheme (shared-secret HS256 or the issuer's JWKS endpoint for RS256)
// and an explicit revocation strategy, then shared across requests. Every
// failure wraps one of the sentinel errors in the root auth package.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/shopmesh/auth"
)

// Signature schemes. A deployment runs exactly one.
const (
	ModeHS256 = "hs256"
	ModeJWKS  = "jwks"
)

// Revocation strategies.
const (
	RevocationOff    = "off"
	RevocationCache  = "cache"
	RevocationIssuer = "issuer"
)

// Failure policies applied when the revocation backend cannot answer.
// There is no default: enabling revocation checks forces the choice.
const (
	FailOpen   = "open"
	FailClosed = "closed"
)

const defaultLeeway = 30 * time.Second

// Config declares what the verifier trusts and how strictly it checks
// revocation.
type Config struct {
	// Mode selects the signature scheme: ModeHS256 or ModeJWKS.
	Mode string

	// Secret is the shared HS256 secret. Required in ModeHS256.
	Secret string

	// JWKSURL is the issuer's key endpoint. Required in ModeJWKS.
	JWKSURL string

	// Issuer, when set, is matched against the iss claim.
	Issuer string

	// Leeway absorbs clock skew on time-based claims. Defaults to 30s.
	Leeway time.Duration

	// Revocation selects how revoked sessions are detected:
	// RevocationOff, RevocationCache (shared Redis, requires WithRedis)
	// or RevocationIssuer (session lookup against IssuerURL).
	Revocation string

	// FailPolicy decides what happens when the revocation backend is
	// unreachable: FailOpen allows the request with a logged warning,
	// FailClosed rejects it. Required whenever Revocation is enabled.
	FailPolicy string

	// IssuerURL is the issuer's base URL for RevocationIssuer mode.
	IssuerURL string

	// AllowUntracked, in RevocationIssuer mode, lets tokens whose session
	// row no longer exists pass. Leave false unless mid-migration.
	AllowUntracked bool
}

// Verifier validates bearer tokens and resolves them to principals.
type Verifier struct {
	cfg         Config
	keys        keyProvider
	revocations RevocationChecker
	httpClient  *http.Client
	redisClient redis.UniversalClient
	logger      *slog.Logger
	parser      *jwt.Parser
}

// Option customises a Verifier at construction time.
type Option func(*Verifier)

// WithRedis injects the Redis client used for RevocationCache mode. The
// verifier never opens or closes this client; its lifecycle belongs to
// the embedding service.
func WithRedis(client redis.UniversalClient) Option {
	return func(v *Verifier) { v.redisClient = client }
}

// WithHTTPClient replaces the HTTP client used for JWKS fetches and
// issuer session lookups.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) { v.httpClient = client }
}

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

// WithRevocationChecker swaps in a custom revocation backend, overriding
// whatever Config.Revocation would have built. FailPolicy still applies.
func WithRevocationChecker(rc RevocationChecker) Option {
	return func(v *Verifier) { v.revocations = rc }
}

// New builds a Verifier. Configuration is validated eagerly so a
// misconfigured service fails at startup, not on its first request.
func New(cfg Config, opts ...Option) (*Verifier, error) {
	if cfg.Leeway <= 0 {
		cfg.Leeway = defaultLeeway
	}
	v := &Verifier{
		cfg:    cfg,
		logger: slog.Default().With("module", "verify"),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.httpClient == nil {
		v.httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	switch cfg.Mode {
	case ModeHS256:
		if cfg.Secret == "" {
			return nil, errors.New("verify: hs256 mode requires a secret")
		}
		v.keys = hmacKeys{secret: []byte(cfg.Secret)}
	case ModeJWKS:
		if cfg.JWKSURL == "" {
			return nil, errors.New("verify: jwks mode requires a jwks url")
		}
		v.keys = newJWKSKeys(cfg.JWKSURL, v.httpClient, v.logger)
	default:
		return nil, fmt.Errorf("verify: unknown mode %q", cfg.Mode)
	}

	switch cfg.Revocation {
	case "", RevocationOff:
	case RevocationCache:
		if v.revocations == nil {
			if v.redisClient == nil {
				return nil, errors.New("verify: cache revocation requires a redis client")
			}
			v.revocations = redisRevocations{client: v.redisClient}
		}
	case RevocationIssuer:
		if v.revocations == nil {
			if cfg.IssuerURL == "" {
				return nil, errors.New("verify: issuer revocation requires the issuer url")
			}
			v.revocations = issuerRevocations{
				baseURL:        cfg.IssuerURL,
				client:         v.httpClient,
				allowUntracked: cfg.AllowUntracked,
			}
		}
	default:
		return nil, fmt.Errorf("verify: unknown revocation strategy %q", cfg.Revocation)
	}
	if v.revocations != nil && cfg.FailPolicy != FailOpen && cfg.FailPolicy != FailClosed {
		return nil, errors.New("verify: revocation checks require an explicit fail policy, open or closed")
	}

	v.parser = jwt.NewParser(
		jwt.WithValidMethods(v.keys.methods()),
		jwt.WithLeeway(cfg.Leeway),
	)
	return v, nil
}

// Close releases resources the verifier owns. Injected Redis clients are
// left open for their owner to close.
func (v *Verifier) Close() error {
	v.httpClient.CloseIdleConnections()
	return nil
}

// FromRequest extracts the bearer credential for a request, in priority
// order: the explicit token when the caller already holds one, the
// access_token cookie, then the Authorization header. Empty means no
// credential was presented.
func FromRequest(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if c, err := r.Cookie(auth.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// VerifyRequest extracts the request's bearer credential and verifies it.
func (v *Verifier) VerifyRequest(r *http.Request) (auth.Principal, error) {
	return v.Verify(r.Context(), FromRequest(r, ""))
}

// Verify validates a raw bearer token and resolves it to a Principal.
// Service-scoped tokens never resolve: they fail with ErrServiceScope so
// an endpoint expecting an end user cannot silently accept a machine.
func (v *Verifier) Verify(ctx context.Context, raw string) (auth.Principal, error) {
	if raw == "" {
		return auth.Principal{}, auth.ErrNoToken
	}

	var wire auth.JWTClaims
	_, err := v.parser.ParseWithClaims(raw, &wire, func(t *jwt.Token) (any, error) {
		return v.keys.keyFor(ctx, t)
	})
	if err != nil {
		return auth.Principal{}, mapParseError(err)
	}
	if v.cfg.Issuer != "" && wire.RegisteredClaims.Issuer != v.cfg.Issuer {
		return auth.Principal{}, fmt.Errorf("%w: issuer %q is not trusted", auth.ErrInvalidSignature, wire.RegisteredClaims.Issuer)
	}

	decoded, err := wire.Decode()
	if err != nil {
		return auth.Principal{}, err
	}

	switch c := decoded.(type) {
	case auth.ServiceClaims:
		return auth.Principal{}, auth.ErrServiceScope
	case auth.UserClaims:
		if c.TokenUse == auth.TokenUseRefresh {
			return auth.Principal{}, fmt.Errorf("%w: refresh token presented as access token", auth.ErrInsufficientScope)
		}
		if err := v.checkRevocation(ctx, c.JTI); err != nil {
			return auth.Principal{}, err
		}
		if !c.IsActive {
			return auth.Principal{}, auth.ErrInactiveAccount
		}
		return c.Principal(), nil
	default:
		return auth.Principal{}, fmt.Errorf("%w: unknown claim shape", auth.ErrMalformedToken)
	}
}

func (v *Verifier) checkRevocation(ctx context.Context, jti string) error {
	if v.revocations == nil || jti == "" {
		return nil
	}
	revoked, err := v.revocations.IsRevoked(ctx, jti)
	if err != nil {
		if v.cfg.FailPolicy == FailClosed {
			return fmt.Errorf("%w: revocation check: %v", auth.ErrUpstreamUnavailable, err)
		}
		v.logger.Warn("revocation check failed, allowing request",
			"jti", jti,
			"error", err.Error(),
		)
		return nil
	}
	if revoked {
		return auth.ErrTokenRevoked
	}
	return nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, auth.ErrUpstreamUnavailable),
		errors.Is(err, auth.ErrInvalidSignature),
		errors.Is(err, auth.ErrMalformedToken):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return auth.ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return auth.ErrInvalidSignature
	default:
		return fmt.Errorf("%w: %v", auth.ErrMalformedToken, err)
	}
}
