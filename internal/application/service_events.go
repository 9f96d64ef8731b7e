package application

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shopmesh/auth/internal/domain"
	"github.com/shopmesh/auth/internal/ports"
)

const (
	// eventTypeSessionCreated is emitted for every new session row.
	eventTypeSessionCreated = "auth.session.created"
	// eventTypeSessionRevoked is emitted once per session transition to
	// revoked, whatever the reason.
	eventTypeSessionRevoked = "auth.session.revoked"
	// eventTypeSessionsBulkRevoked is emitted once per logout-others
	// style bulk operation, alongside the per-session cache marks.
	eventTypeSessionsBulkRevoked = "auth.sessions.bulk_revoked"
)

// enqueueEvent appends to the outbox best-effort: the state transition
// that triggered the event has already committed.
func (s *Service) enqueueEvent(ctx context.Context, eventType string, userID int64, payload map[string]any) {
	raw, _ := json.Marshal(payload)
	if err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: strconv.FormatInt(userID, 10),
		Payload:      raw,
		OccurredAt:   s.nowFn(),
	}); err != nil {
		appLogger().WarnContext(ctx, "failed to enqueue outbox event",
			"operation", "enqueue_event",
			"outcome", "failure",
			"event_type", eventType,
			"error", err,
		)
	}
}

func (s *Service) announceSessionCreated(ctx context.Context, session domain.Session) {
	s.enqueueEvent(ctx, eventTypeSessionCreated, session.UserID, map[string]any{
		"session_id": session.ID.String(),
		"user_id":    session.UserID,
		"jti":        session.JTI.String(),
		"created_at": session.CreatedAt,
		"expires_at": session.ExpiresAt,
	})
}

func (s *Service) announceSessionRevoked(ctx context.Context, session domain.Session, reason string, revokedAt time.Time) {
	s.enqueueEvent(ctx, eventTypeSessionRevoked, session.UserID, map[string]any{
		"session_id": session.ID.String(),
		"user_id":    session.UserID,
		"jti":        session.JTI.String(),
		"reason":     reason,
		"revoked_at": revokedAt,
	})
}

func (s *Service) announceBulkRevoked(ctx context.Context, userID int64, sessions []domain.Session, reason string, revokedAt time.Time) {
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID.String())
	}
	s.enqueueEvent(ctx, eventTypeSessionsBulkRevoked, userID, map[string]any{
		"user_id":     userID,
		"session_ids": ids,
		"count":       len(ids),
		"reason":      reason,
		"revoked_at":  revokedAt,
	})
}

// markSessionRevoked pushes both of the session's token ids into the
// shared revocation cache so verifiers reject them ahead of expiry.
// Cache writes are best-effort; the session row is authoritative.
func (s *Service) markSessionRevoked(ctx context.Context, session domain.Session) {
	until := session.ExpiresAt
	if err := s.revocations.MarkRevoked(ctx, session.JTI, until); err != nil {
		appLogger().WarnContext(ctx, "failed to cache revocation",
			"operation", "mark_revoked",
			"outcome", "failure",
			"jti", session.JTI.String(),
			"error", err,
		)
	}
	if err := s.revocations.MarkRevoked(ctx, session.RefreshJTI, until); err != nil {
		appLogger().WarnContext(ctx, "failed to cache revocation",
			"operation", "mark_revoked",
			"outcome", "failure",
			"jti", session.RefreshJTI.String(),
			"error", err,
		)
	}
}
