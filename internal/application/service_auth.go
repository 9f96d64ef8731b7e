package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shopmesh/auth"
	"github.com/shopmesh/auth/internal/domain"
	"github.com/shopmesh/auth/internal/ports"
)

// Login validates credentials under the lockout policy and issues a
// fresh token pair backed by a new session row.
func (s *Service) Login(ctx context.Context, req LoginRequest) (TokenPairResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return TokenPairResponse{}, err
	}

	lockKey := lockoutKey(email, req.IPAddress)
	lockState, err := s.lockouts.Get(ctx, lockKey)
	if err == nil && lockState.LockedUntil != nil && lockState.LockedUntil.After(s.nowFn()) {
		appLogger().WarnContext(ctx, "login blocked by lockout",
			"operation", "login",
			"outcome", "blocked",
			"email", email,
			"locked_until", lockState.LockedUntil,
		)
		s.recordLoginFailure(ctx, nil, email, req, "ACCOUNT_LOCKED")
		return TokenPairResponse{}, domain.ErrAccountLocked
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.recordLoginFailure(ctx, nil, email, req, "USER_NOT_FOUND")
		return TokenPairResponse{}, domain.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.recordLoginFailure(ctx, &user.ID, email, req, "INVALID_PASSWORD")
		now := s.nowFn()
		state, lockErr := s.lockouts.RecordFailure(ctx, lockKey, now, s.cfg.FailedLoginThreshold, s.cfg.LockoutDuration)
		if lockErr != nil {
			// Lockout state unavailable: refuse rather than allow
			// unmetered guessing.
			appLogger().ErrorContext(ctx, "lockout state unavailable",
				"operation", "login",
				"outcome", "failure",
				"error", lockErr,
			)
			return TokenPairResponse{}, domain.ErrAccountLocked
		}
		if state.LockedUntil != nil && state.LockedUntil.After(now) {
			appLogger().WarnContext(ctx, "lockout triggered",
				"operation", "login",
				"outcome", "blocked",
				"email", email,
				"locked_until", state.LockedUntil,
			)
			return TokenPairResponse{}, domain.ErrAccountLocked
		}
		return TokenPairResponse{}, domain.ErrInvalidCredentials
	}

	// Inactive is only disclosed once the caller has proven the
	// password; before that every failure reads as bad credentials.
	if !user.IsActive || user.DeletedAt != nil {
		s.recordLoginFailure(ctx, &user.ID, email, req, "ACCOUNT_INACTIVE")
		return TokenPairResponse{}, domain.ErrAccountInactive
	}

	_ = s.lockouts.Clear(ctx, lockKey)

	pair, err := s.issueSession(ctx, user, req.UserAgent, req.IPAddress, s.deviceFingerprint(req.DeviceID))
	if err != nil {
		return TokenPairResponse{}, err
	}
	s.recordLoginSuccess(ctx, user.ID, email, req)
	return pair, nil
}

// issueSession creates the session row (superseding any active session
// on the same bound device) and signs the access+refresh pair against
// its fresh token ids.
func (s *Service) issueSession(ctx context.Context, user domain.User, userAgent, ipAddress, fingerprint string) (TokenPairResponse, error) {
	now := s.nowFn()
	params := ports.SessionCreateParams{
		UserID:     user.ID,
		JTI:        uuid.New(),
		RefreshJTI: uuid.New(),
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
		DeviceID:   fingerprint,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.RefreshTokenTTL),
	}

	var (
		session    domain.Session
		superseded []domain.Session
		err        error
	)
	if s.cfg.DeviceBinding && fingerprint != "" {
		session, superseded, err = s.sessions.CreateSuperseding(ctx, params, domain.RevokeReasonSupersededByLogin)
	} else {
		session, err = s.sessions.Create(ctx, params)
	}
	if err != nil {
		return TokenPairResponse{}, fmt.Errorf("create session: %w", err)
	}
	for _, old := range superseded {
		s.markSessionRevoked(ctx, old)
		s.announceSessionRevoked(ctx, old, domain.RevokeReasonSupersededByLogin, now)
	}
	s.announceSessionCreated(ctx, session)

	accessToken, err := s.signer.Sign(s.accessClaims(user, session.JTI, now))
	if err != nil {
		return TokenPairResponse{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, err := s.signer.Sign(s.refreshClaims(user, session.RefreshJTI, now))
	if err != nil {
		return TokenPairResponse{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPairResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
		SessionID:    session.ID,
	}, nil
}

// Refresh rotates a refresh token: the old session row is revoked with
// reason "rotated" and a new row backs the returned pair. A refresh
// token that lost the rotation race is rejected, which also catches
// replay of an already-rotated token.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (TokenPairResponse, error) {
	claims, err := s.signer.ParseAndValidate(req.RefreshToken)
	if err != nil {
		return TokenPairResponse{}, err
	}
	if claims.TokenUse != auth.TokenUseRefresh {
		return TokenPairResponse{}, fmt.Errorf("%w: not a refresh token", domain.ErrUnauthorized)
	}
	refreshJTI, err := uuid.Parse(claims.ID)
	if err != nil {
		return TokenPairResponse{}, domain.ErrUnauthorized
	}

	session, err := s.sessions.GetByJTI(ctx, refreshJTI)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenPairResponse{}, domain.ErrSessionRevoked
		}
		return TokenPairResponse{}, err
	}
	if session.RefreshJTI != refreshJTI {
		return TokenPairResponse{}, domain.ErrUnauthorized
	}
	now := s.nowFn()
	if !session.IsActive {
		return TokenPairResponse{}, domain.ErrSessionRevoked
	}
	if session.ExpiresAt.Before(now) {
		return TokenPairResponse{}, domain.ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenPairResponse{}, domain.ErrUnauthorized
		}
		return TokenPairResponse{}, err
	}
	if !user.IsActive || user.DeletedAt != nil {
		return TokenPairResponse{}, domain.ErrAccountInactive
	}

	// Revoke before issuing: of two concurrent rotations of the same
	// token exactly one sees the transition; the other is a replay.
	transitioned, err := s.sessions.Revoke(ctx, refreshJTI, domain.RevokeReasonRotated, now)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return TokenPairResponse{}, err
	}
	if err != nil || !transitioned {
		return TokenPairResponse{}, domain.ErrSessionRevoked
	}
	s.markSessionRevoked(ctx, session)
	s.announceSessionRevoked(ctx, session, domain.RevokeReasonRotated, now)

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = session.UserAgent
	}
	ipAddress := req.IPAddress
	if ipAddress == "" {
		ipAddress = session.IPAddress
	}
	return s.issueSession(ctx, user, userAgent, ipAddress, session.DeviceID)
}

// Logout revokes the caller's session. Repeats and logouts of untracked
// tokens succeed without effect.
func (s *Service) Logout(ctx context.Context, token VerifiedToken) error {
	jti, err := uuid.Parse(token.Principal.JTI)
	if err != nil {
		return nil
	}

	session, err := s.sessions.GetByJTI(ctx, jti)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	now := s.nowFn()
	transitioned, err := s.sessions.Revoke(ctx, jti, domain.RevokeReasonLogout, now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if transitioned {
		s.markSessionRevoked(ctx, session)
		s.announceSessionRevoked(ctx, session, domain.RevokeReasonLogout, now)
	}
	return nil
}

// LogoutOthers revokes every other active session of the caller and
// reports how many this call actually transitioned.
func (s *Service) LogoutOthers(ctx context.Context, token VerifiedToken) (int, error) {
	jti, err := uuid.Parse(token.Principal.JTI)
	if err != nil {
		return 0, domain.ErrUnauthorized
	}

	now := s.nowFn()
	revoked, err := s.sessions.RevokeAllForUser(ctx, token.Principal.UserID, &jti, domain.RevokeReasonLogoutOthers, now)
	if err != nil {
		return 0, err
	}
	for _, session := range revoked {
		s.markSessionRevoked(ctx, session)
	}
	if len(revoked) > 0 {
		s.announceBulkRevoked(ctx, token.Principal.UserID, revoked, domain.RevokeReasonLogoutOthers, now)
	}
	return len(revoked), nil
}

// ValidateToken is the issuer-side bearer check: signature and time
// claims via the signer, then session state from cache and store. It
// accepts access tokens and service tokens; refresh tokens are not
// bearer credentials.
func (s *Service) ValidateToken(ctx context.Context, raw string) (VerifiedToken, error) {
	wire, err := s.signer.ParseAndValidate(raw)
	if err != nil {
		return VerifiedToken{}, err
	}
	decoded, err := wire.Decode()
	if err != nil {
		return VerifiedToken{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	switch claims := decoded.(type) {
	case auth.ServiceClaims:
		return VerifiedToken{
			Principal: auth.Principal{Scope: auth.ScopeService, JTI: claims.JTI},
			ExpiresAt: claims.ExpiresAt,
		}, nil
	case auth.UserClaims:
		return s.validateUserToken(ctx, claims)
	default:
		return VerifiedToken{}, domain.ErrUnauthorized
	}
}

func (s *Service) validateUserToken(ctx context.Context, claims auth.UserClaims) (VerifiedToken, error) {
	if claims.TokenUse != auth.TokenUseAccess {
		return VerifiedToken{}, fmt.Errorf("%w: refresh tokens are not bearer credentials", domain.ErrUnauthorized)
	}
	jti, err := uuid.Parse(claims.JTI)
	if err != nil {
		return VerifiedToken{}, domain.ErrUnauthorized
	}

	if revoked, cacheErr := s.revocations.IsRevoked(ctx, jti); cacheErr == nil && revoked {
		return VerifiedToken{}, domain.ErrSessionRevoked
	}

	sessionID := uuid.Nil
	session, err := s.sessions.GetByJTI(ctx, jti)
	switch {
	case err == nil:
		if !session.IsActive {
			return VerifiedToken{}, domain.ErrSessionRevoked
		}
		if session.ExpiresAt.Before(s.nowFn()) {
			return VerifiedToken{}, domain.ErrSessionExpired
		}
		sessionID = session.ID
	case errors.Is(err, domain.ErrNotFound):
		if !s.cfg.AllowUntrackedTokens {
			return VerifiedToken{}, domain.ErrSessionRevoked
		}
	default:
		return VerifiedToken{}, err
	}

	if !claims.IsActive {
		return VerifiedToken{}, domain.ErrAccountInactive
	}

	return VerifiedToken{
		Principal: claims.Principal(),
		SessionID: sessionID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// SessionActive reports (active, found) for a token id, the flat lookup
// behind GET /auth/v1/sessions/{jti}/active.
func (s *Service) SessionActive(ctx context.Context, jti uuid.UUID) (bool, bool, error) {
	return s.sessions.ActiveByJTI(ctx, jti, s.nowFn())
}
