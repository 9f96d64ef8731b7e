package auth

import "errors"

// Verification errors. Every failure a verifier can surface wraps exactly
// one of these, so callers branch with errors.Is instead of string
// matching.
var (
	// ErrNoToken means no bearer credential was present on the request at
	// all: no explicit token, no cookie, no Authorization header.
	ErrNoToken = errors.New("missing bearer token")

	// ErrMalformedToken covers tokens that cannot be decoded: wrong
	// segment count, bad base64, unparseable claims.
	ErrMalformedToken = errors.New("malformed token")

	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpiredToken     = errors.New("token expired")
	ErrTokenRevoked     = errors.New("token revoked")
	ErrInactiveAccount  = errors.New("account inactive")

	// ErrInsufficientScope means the token verified fine but does not
	// grant what the caller asked for, e.g. a refresh token presented
	// where an access token is required.
	ErrInsufficientScope = errors.New("insufficient scope")

	// ErrServiceScope means a service-to-service token was presented
	// where an end-user identity is required. Service tokens never
	// resolve to a Principal with a user id.
	ErrServiceScope = errors.New("service token carries no end user")

	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUpstreamUnavailable means verification could not complete
	// because a dependency (revocation cache, issuer, key endpoint) was
	// unreachable and the verifier is configured to fail closed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
