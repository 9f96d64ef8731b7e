package application

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/shopmesh/auth/internal/domain"
)

// ListSessions returns the caller's sessions, newest first, with the
// current one flagged.
func (s *Service) ListSessions(ctx context.Context, token VerifiedToken) ([]SessionItem, error) {
	sessions, err := s.sessions.ListByUser(ctx, token.Principal.UserID, 100, 0)
	if err != nil {
		return nil, err
	}

	result := make([]SessionItem, 0, len(sessions))
	for _, it := range sessions {
		result = append(result, toSessionItem(it, token.SessionID))
	}
	return result, nil
}

// RevokeSessionByID revokes one session owned by the caller. Revoking a
// session that is already revoked succeeds without effect; sessions of
// other users read as unauthorized, not as absent.
func (s *Service) RevokeSessionByID(ctx context.Context, token VerifiedToken, sessionID uuid.UUID) error {
	target, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if target.UserID != token.Principal.UserID {
		return domain.ErrUnauthorized
	}

	now := s.nowFn()
	transitioned, err := s.sessions.RevokeByID(ctx, sessionID, domain.RevokeReasonRevokedByUser, now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if transitioned {
		s.markSessionRevoked(ctx, target)
		s.announceSessionRevoked(ctx, target, domain.RevokeReasonRevokedByUser, now)
	}
	return nil
}

// ListLoginHistory pages through the caller's login attempts.
func (s *Service) ListLoginHistory(ctx context.Context, token VerifiedToken, q LoginHistoryQuery) ([]LoginHistoryItem, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	offset := (q.Page - 1) * q.Limit

	attempts, err := s.loginAttempts.ListByUser(ctx, token.Principal.UserID, q.Limit, offset)
	if err != nil {
		return nil, err
	}

	result := make([]LoginHistoryItem, 0, len(attempts))
	for _, attempt := range attempts {
		result = append(result, LoginHistoryItem{
			ID:            attempt.ID,
			Timestamp:     attempt.AttemptAt,
			Status:        attempt.Status,
			FailureReason: attempt.FailureReason,
			IPAddress:     attempt.IPAddress,
			UserAgent:     attempt.UserAgent,
		})
	}
	return result, nil
}
