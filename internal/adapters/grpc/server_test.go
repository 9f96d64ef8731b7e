package grpc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/shopmesh/auth"
	grpcadapter "github.com/shopmesh/auth/internal/adapters/grpc"
	"github.com/shopmesh/auth/internal/application"
	"github.com/shopmesh/auth/internal/domain"
	"github.com/shopmesh/auth/internal/ports"
)

func TestValidateTokenReturnsPrincipalFields(t *testing.T) {
	t.Parallel()

	server, env := newValidateServer(t)
	req, err := structpb.NewStruct(map[string]any{"token": env.userToken})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	resp, err := server.ValidateToken(context.Background(), req)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	fields := resp.GetFields()
	if !fields["valid"].GetBoolValue() {
		t.Fatalf("expected valid=true, got %v", fields)
	}
	if got := int64(fields["user_id"].GetNumberValue()); got != 7 {
		t.Fatalf("user_id = %d", got)
	}
	if !fields["is_admin"].GetBoolValue() {
		t.Fatalf("expected is_admin=true")
	}
	if fields["session_id"].GetStringValue() != env.sessionID.String() {
		t.Fatalf("session_id = %q", fields["session_id"].GetStringValue())
	}
	if fields["scope"].GetStringValue() != "" {
		t.Fatalf("user token must carry no scope")
	}
}

func TestValidateTokenServiceScope(t *testing.T) {
	t.Parallel()

	server, env := newValidateServer(t)
	req, _ := structpb.NewStruct(map[string]any{"token": env.serviceToken})

	resp, err := server.ValidateToken(context.Background(), req)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	fields := resp.GetFields()
	if fields["scope"].GetStringValue() != auth.ScopeService {
		t.Fatalf("scope = %q", fields["scope"].GetStringValue())
	}
	if _, hasUserID := fields["user_id"]; hasUserID {
		t.Fatalf("service tokens must not expose a user_id")
	}
}

func TestValidateTokenRejections(t *testing.T) {
	t.Parallel()

	server, _ := newValidateServer(t)

	empty, _ := structpb.NewStruct(map[string]any{})
	if _, err := server.ValidateToken(context.Background(), empty); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing token: expected InvalidArgument, got %v", err)
	}

	bad, _ := structpb.NewStruct(map[string]any{"token": "forged"})
	if _, err := server.ValidateToken(context.Background(), bad); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("unknown token: expected Unauthenticated, got %v", err)
	}
}

func TestGetPublicKeys(t *testing.T) {
	t.Parallel()

	server, _ := newValidateServer(t)
	resp, err := server.GetPublicKeys(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("get keys failed: %v", err)
	}
	keys := resp.GetFields()["keys"].GetListValue().GetValues()
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}
	kid := keys[0].GetStructValue().GetFields()["kid"].GetStringValue()
	if kid != "grpc-test-key" {
		t.Fatalf("kid = %q", kid)
	}
}

type validateEnv struct {
	userToken    string
	serviceToken string
	sessionID    uuid.UUID
}

// newValidateServer wires only the ports token validation touches:
// signer, session store, revocation cache.
func newValidateServer(t *testing.T) (*grpcadapter.AuthInternalServer, validateEnv) {
	t.Helper()

	now := time.Now().UTC()
	jti := uuid.New()
	sessionID := uuid.New()
	active := true

	signer := &stubSigner{tokens: map[string]auth.JWTClaims{
		"good-user-token": {
			TokenUse: auth.TokenUseAccess,
			IsAdmin:  true,
			IsActive: &active,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "7",
				ID:        jti.String(),
				ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
			},
		},
		"good-service-token": {
			Scope: auth.ScopeService,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "orders-service",
				ID:        uuid.NewString(),
				ExpiresAt: jwt.NewNumericDate(now.Add(20 * time.Minute)),
			},
		},
	}}
	sessions := &stubSessions{rows: map[uuid.UUID]domain.Session{
		sessionID: {
			ID:         sessionID,
			UserID:     7,
			JTI:        jti,
			RefreshJTI: uuid.New(),
			CreatedAt:  now,
			ExpiresAt:  now.Add(720 * time.Hour),
			IsActive:   true,
		},
	}}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			Issuer:         "https://auth.shopmesh.dev",
			AccessTokenTTL: 15 * time.Minute,
		},
		Sessions:    sessions,
		Revocations: stubRevocations{},
		Signer:      signer,
	})
	return grpcadapter.NewAuthInternalServer(svc), validateEnv{
		userToken:    "good-user-token",
		serviceToken: "good-service-token",
		sessionID:    sessionID,
	}
}

type stubSigner struct {
	mu     sync.Mutex
	tokens map[string]auth.JWTClaims
}

func (s *stubSigner) Sign(claims auth.JWTClaims) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.tokens[token] = claims
	return token, nil
}

func (s *stubSigner) ParseAndValidate(token string) (auth.JWTClaims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claims, ok := s.tokens[token]
	if !ok {
		return auth.JWTClaims{}, domain.ErrUnauthorized
	}
	return claims, nil
}

func (s *stubSigner) PublicJWKs() ([]map[string]any, error) {
	return []map[string]any{{"kid": "grpc-test-key", "kty": "RSA", "use": "sig"}}, nil
}

type stubSessions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.Session
}

func (s *stubSessions) Create(_ context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	return domain.Session{}, domain.ErrNotFound
}

func (s *stubSessions) CreateSuperseding(_ context.Context, params ports.SessionCreateParams, _ string) (domain.Session, []domain.Session, error) {
	return domain.Session{}, nil, domain.ErrNotFound
}

func (s *stubSessions) GetByID(_ context.Context, id uuid.UUID) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.rows[id]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return session, nil
}

func (s *stubSessions) GetByJTI(_ context.Context, jti uuid.UUID) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.rows {
		if session.JTI == jti || session.RefreshJTI == jti {
			return session, nil
		}
	}
	return domain.Session{}, domain.ErrNotFound
}

func (s *stubSessions) ListByUser(context.Context, int64, int, int) ([]domain.Session, error) {
	return nil, nil
}

func (s *stubSessions) ActiveByJTI(ctx context.Context, jti uuid.UUID, now time.Time) (bool, bool, error) {
	session, err := s.GetByJTI(ctx, jti)
	if err != nil {
		return false, false, nil
	}
	return session.IsActive && session.ExpiresAt.After(now), true, nil
}

func (s *stubSessions) Revoke(context.Context, uuid.UUID, string, time.Time) (bool, error) {
	return false, domain.ErrNotFound
}

func (s *stubSessions) RevokeByID(context.Context, uuid.UUID, string, time.Time) (bool, error) {
	return false, domain.ErrNotFound
}

func (s *stubSessions) RevokeAllForUser(context.Context, int64, *uuid.UUID, string, time.Time) ([]domain.Session, error) {
	return nil, nil
}

type stubRevocations struct{}

func (stubRevocations) MarkRevoked(context.Context, uuid.UUID, time.Time) error { return nil }
func (stubRevocations) IsRevoked(context.Context, uuid.UUID) (bool, error)      { return false, nil }
