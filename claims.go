package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the wire-level claim set carried by every token the issuer
// signs. It is a superset of the user and service shapes; Decode splits it
// into the tagged variant callers should switch on.
//
// is_active is a pointer so that tokens minted before the flag existed
// stay distinguishable from tokens asserting an inactive account.
type JWTClaims struct {
	Scope        string `json:"scope,omitempty"`
	TokenUse     string `json:"token_use,omitempty"`
	IsAdmin      bool   `json:"is_admin,omitempty"`
	IsSuperAdmin bool   `json:"is_super_admin,omitempty"`
	IsActive     *bool  `json:"is_active,omitempty"`
	jwt.RegisteredClaims
}

// Claims is the decoded form of a verified token. Exactly two variants
// exist: UserClaims for end-user tokens and ServiceClaims for
// service-to-service tokens.
type Claims interface {
	isClaims()
}

// UserClaims is the decoded claim set of an end-user token.
type UserClaims struct {
	UserID       int64
	JTI          string
	TokenUse     string
	IsAdmin      bool
	IsSuperAdmin bool
	IsActive     bool
	Issuer       string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

func (UserClaims) isClaims() {}

// ServiceClaims is the decoded claim set of a service-to-service token.
// It carries no end-user identity.
type ServiceClaims struct {
	ClientID  string
	JTI       string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (ServiceClaims) isClaims() {}

// Decode converts the wire claims into their tagged variant. Service scope
// wins over everything else: a token carrying scope "service" is never a
// user token regardless of what its subject looks like.
func (c JWTClaims) Decode() (Claims, error) {
	jti := c.ID
	var issuedAt, expiresAt time.Time
	if c.IssuedAt != nil {
		issuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		expiresAt = c.ExpiresAt.Time
	}

	if c.Scope == ScopeService {
		if c.Subject == "" {
			return nil, fmt.Errorf("%w: service token missing subject", ErrMalformedToken)
		}
		return ServiceClaims{
			ClientID:  c.Subject,
			JTI:       jti,
			Issuer:    c.RegisteredClaims.Issuer,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		}, nil
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q is not a user id", ErrMalformedToken, c.Subject)
	}
	active := true
	if c.IsActive != nil {
		active = *c.IsActive
	}
	return UserClaims{
		UserID:       userID,
		JTI:          jti,
		TokenUse:     c.TokenUse,
		IsAdmin:      c.IsAdmin,
		IsSuperAdmin: c.IsSuperAdmin,
		IsActive:     active,
		Issuer:       c.RegisteredClaims.Issuer,
		IssuedAt:     issuedAt,
		ExpiresAt:    expiresAt,
	}, nil
}

// Principal builds the request-scoped identity for the user these claims
// describe.
func (c UserClaims) Principal() Principal {
	return Principal{
		UserID:       c.UserID,
		IsAdmin:      c.IsAdmin,
		IsSuperAdmin: c.IsSuperAdmin,
		IsActive:     c.IsActive,
		JTI:          c.JTI,
	}
}
