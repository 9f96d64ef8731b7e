package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the authentication read model. Identity lifecycle (signup,
// profile, deletion) is owned by the user service; this service only
// reads the columns that decide whether and how a login succeeds.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsAdmin      bool
	IsSuperAdmin bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Session is one issued token pair. JTI identifies the access token,
// RefreshJTI the refresh token; either one resolves back to this row.
// Rows are never physically deleted here: revocation flips IsActive and
// stamps RevokedAt exactly once, so audit history survives logout.
type Session struct {
	ID            uuid.UUID
	UserID        int64
	JTI           uuid.UUID
	RefreshJTI    uuid.UUID
	UserAgent     string
	IPAddress     string
	DeviceID      string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	IsActive      bool
	RevokedAt     *time.Time
	RevokedReason string
}

// Revocation reasons stamped onto sessions. SupersededByLogin is part of
// the device-binding contract: a new login on a bound device retires the
// previous session under exactly this reason.
const (
	RevokeReasonLogout            = "logout"
	RevokeReasonLogoutOthers      = "logout other devices"
	RevokeReasonRotated           = "rotated"
	RevokeReasonSupersededByLogin = "superseded by new login"
	RevokeReasonRevokedByUser     = "revoked by user"
)

// LoginAttempt records authentication outcomes for audit and lockout
// controls. UserID stays nil when the email matched no account, so the
// audit trail cannot be used for account enumeration either.
type LoginAttempt struct {
	ID            int64
	UserID        *int64
	Email         string
	AttemptAt     time.Time
	IPAddress     string
	UserAgent     string
	Status        string
	FailureReason string
}

// LoginAttempt statuses.
const (
	LoginAttemptSuccess = "SUCCESS"
	LoginAttemptFailure = "FAILURE"
)

// ServiceClient is a machine caller allowed to exchange client
// credentials for a service token. Clients are declared in configuration;
// only the bcrypt hash of the secret ever reaches this service.
type ServiceClient struct {
	ClientID   string
	SecretHash string
}
