package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shopmesh/auth/internal/domain"
)

// UserRepository reads the authentication view of user accounts. Writes
// happen in the user service; this one only needs lookups.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
}

// SessionCreateParams carries everything needed to persist a new session
// row alongside a freshly signed token pair.
type SessionCreateParams struct {
	UserID     int64
	JTI        uuid.UUID
	RefreshJTI uuid.UUID
	UserAgent  string
	IPAddress  string
	DeviceID   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// SessionRepository is the authoritative session and revocation store.
//
// Revocation methods are idempotent at the row level: a session
// transitions active -> revoked at most once, and the bool/count results
// report rows actually transitioned by THIS call. Implementations must
// take row-level locks so concurrent revocations of the same jti cannot
// both claim the transition.
type SessionRepository interface {
	Create(ctx context.Context, params SessionCreateParams) (domain.Session, error)

	// CreateSuperseding atomically revokes any still-active sessions
	// bound to the same device before inserting the new row, all in one
	// transaction. The revoked rows are returned so callers can fan the
	// revocations out to caches and events.
	CreateSuperseding(ctx context.Context, params SessionCreateParams, reason string) (domain.Session, []domain.Session, error)

	GetByID(ctx context.Context, id uuid.UUID) (domain.Session, error)

	// GetByJTI resolves a session by either its access or refresh token id.
	GetByJTI(ctx context.Context, jti uuid.UUID) (domain.Session, error)

	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Session, error)

	// ActiveByJTI reports (active, found) for the session carrying the
	// given token id, judged at the supplied instant.
	ActiveByJTI(ctx context.Context, jti uuid.UUID, now time.Time) (bool, bool, error)

	// Revoke marks the session carrying jti as revoked. It returns true
	// when this call performed the transition and false when the session
	// was already revoked; a missing session is domain.ErrNotFound.
	Revoke(ctx context.Context, jti uuid.UUID, reason string, revokedAt time.Time) (bool, error)

	// RevokeByID is Revoke keyed by session id.
	RevokeByID(ctx context.Context, id uuid.UUID, reason string, revokedAt time.Time) (bool, error)

	// RevokeAllForUser revokes every active session of the user except
	// the one carrying exceptJTI (nil revokes all). It returns the rows
	// transitioned by this call.
	RevokeAllForUser(ctx context.Context, userID int64, exceptJTI *uuid.UUID, reason string, revokedAt time.Time) ([]domain.Session, error)
}

// LoginAttemptInsertParams mirrors domain.LoginAttempt minus the
// generated id.
type LoginAttemptInsertParams struct {
	UserID        *int64
	Email         string
	AttemptAt     time.Time
	IPAddress     string
	UserAgent     string
	Status        string
	FailureReason string
}

// LoginAttemptRepository is the append-only authentication audit trail.
type LoginAttemptRepository interface {
	Insert(ctx context.Context, params LoginAttemptInsertParams) error
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.LoginAttempt, error)
}

// OutboxEvent is a domain event waiting to be published.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord is a persisted outbox row claimed for publishing.
type OutboxRecord struct {
	OutboxID     uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	RetryCount   int
	CreatedAt    time.Time
}

// OutboxRepository persists domain events in the same database as the
// state change that caused them, for the relay worker to publish.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error

	// ClaimUnpublished atomically claims up to limit unpublished rows
	// until claimUntil, so concurrent workers never publish the same row
	// twice.
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)

	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
