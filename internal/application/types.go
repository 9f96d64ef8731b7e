package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopmesh/auth"
	"github.com/shopmesh/auth/internal/domain"
)

type Config struct {
	Issuer               string
	Audience             string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	ServiceTokenTTL      time.Duration
	DeviceBinding        bool
	DeviceSalt           string
	FailedLoginThreshold int
	LockoutDuration      time.Duration

	// AllowUntrackedTokens accepts access tokens whose jti has no
	// session row. Off by default; only for rolling upgrades from
	// deployments that predate the session store.
	AllowUntrackedTokens bool
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	DeviceID string `json:"device_id"`

	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`

	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// TokenPairResponse is the login/refresh result: a short-lived access
// token and the refresh token that can rotate it.
type TokenPairResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	SessionID    uuid.UUID `json:"session_id"`
}

// ServiceTokenResponse is the flat OAuth-style body of the
// client_credentials exchange.
type ServiceTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type SessionItem struct {
	SessionID     uuid.UUID  `json:"session_id"`
	UserAgent     string     `json:"user_agent,omitempty"`
	IPAddress     string     `json:"ip_address,omitempty"`
	DeviceBound   bool       `json:"device_bound"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	IsActive      bool       `json:"is_active"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason string     `json:"revoked_reason,omitempty"`
	IsCurrent     bool       `json:"is_current"`
}

type LoginHistoryQuery struct {
	Page  int
	Limit int
}

type LoginHistoryItem struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
}

// VerifiedToken is the issuer-side validation result. SessionID is
// uuid.Nil for tokens accepted under the untracked-token policy and
// for service tokens, which have no session row.
type VerifiedToken struct {
	Principal auth.Principal
	SessionID uuid.UUID
	ExpiresAt time.Time
}

func toSessionItem(s domain.Session, currentSessionID uuid.UUID) SessionItem {
	return SessionItem{
		SessionID:     s.ID,
		UserAgent:     s.UserAgent,
		IPAddress:     s.IPAddress,
		DeviceBound:   s.DeviceID != "",
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
		IsActive:      s.IsActive,
		RevokedAt:     s.RevokedAt,
		RevokedReason: s.RevokedReason,
		IsCurrent:     s.ID == currentSessionID,
	}
}
