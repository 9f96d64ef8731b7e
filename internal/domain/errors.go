package domain

import "errors"

// Sentinel errors adapters translate into transport status codes. Wrap
// them with %w so errors.Is keeps working across layers.
var (
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether the identifier or the secret
	// failed, for both user logins and service client exchanges.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountInactive    = errors.New("account inactive")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrSessionExpired     = errors.New("session expired")
	ErrTokenExpired       = errors.New("token expired")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	// ErrUnsupportedGrant rejects token-endpoint requests whose
	// grant_type is anything but client_credentials.
	ErrUnsupportedGrant = errors.New("unsupported grant type")
)
