package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shopmesh/auth"
	"github.com/shopmesh/auth/internal/domain"
	"github.com/shopmesh/auth/internal/ports"
)

// normalizeEmail canonicalizes and validates email format before
// lookups and audit rows.
func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return trimmed, nil
}

// deviceFingerprint hashes the raw client device identifier with the
// configured salt. The raw identifier never reaches storage or logs.
func (s *Service) deviceFingerprint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s.cfg.DeviceSalt + raw))
	return hex.EncodeToString(sum[:])
}

func lockoutKey(email, ip string) string {
	key := "login:" + email
	if ip = strings.TrimSpace(ip); ip != "" {
		key += "|" + ip
	}
	return key
}

func (s *Service) recordLoginFailure(ctx context.Context, userID *int64, email string, req LoginRequest, reason string) {
	if err := s.loginAttempts.Insert(ctx, ports.LoginAttemptInsertParams{
		UserID:        userID,
		Email:         email,
		AttemptAt:     s.nowFn(),
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		Status:        domain.LoginAttemptFailure,
		FailureReason: reason,
	}); err != nil {
		appLogger().WarnContext(ctx, "failed to persist login attempt",
			"operation", "record_login_failure",
			"outcome", "failure",
			"reason", reason,
			"error", err,
		)
	}
}

func (s *Service) recordLoginSuccess(ctx context.Context, userID int64, email string, req LoginRequest) {
	if err := s.loginAttempts.Insert(ctx, ports.LoginAttemptInsertParams{
		UserID:    &userID,
		Email:     email,
		AttemptAt: s.nowFn(),
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Status:    domain.LoginAttemptSuccess,
	}); err != nil {
		appLogger().WarnContext(ctx, "failed to persist login attempt",
			"operation", "record_login_success",
			"outcome", "failure",
			"error", err,
		)
	}
}

func (s *Service) accessClaims(user domain.User, jti uuid.UUID, now time.Time) auth.JWTClaims {
	isActive := user.IsActive
	return auth.JWTClaims{
		TokenUse:     auth.TokenUseAccess,
		IsAdmin:      user.IsAdmin,
		IsSuperAdmin: user.IsSuperAdmin,
		IsActive:     &isActive,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Audience:  s.audience(),
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
		},
	}
}

// refreshClaims carry only what rotation needs; capability flags are
// re-read from the user row when the pair is rotated.
func (s *Service) refreshClaims(user domain.User, refreshJTI uuid.UUID, now time.Time) auth.JWTClaims {
	return auth.JWTClaims{
		TokenUse: auth.TokenUseRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Audience:  s.audience(),
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        refreshJTI.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTokenTTL)),
		},
	}
}

func (s *Service) serviceClaims(clientID string, jti uuid.UUID, now time.Time) auth.JWTClaims {
	return auth.JWTClaims{
		Scope: auth.ScopeService,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Audience:  s.audience(),
			Subject:   clientID,
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.ServiceTokenTTL)),
		},
	}
}

func (s *Service) audience() jwt.ClaimStrings {
	if s.cfg.Audience == "" {
		return nil
	}
	return jwt.ClaimStrings{s.cfg.Audience}
}
