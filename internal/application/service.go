package application

import (
	"log/slog"
	"time"

	"github.com/shopmesh/auth/internal/domain"
	"github.com/shopmesh/auth/internal/ports"
)

// Service implements the issuer's use cases: password login, refresh
// rotation, logout and bulk revocation, client_credentials exchange,
// and issuer-side token validation.
type Service struct {
	cfg           Config
	users         ports.UserRepository
	sessions      ports.SessionRepository
	loginAttempts ports.LoginAttemptRepository
	outbox        ports.OutboxRepository
	lockouts      ports.LockoutStore
	revocations   ports.RevocationStore
	hasher        ports.PasswordHasher
	signer        ports.TokenSigner
	clients       map[string]domain.ServiceClient
	nowFn         func() time.Time
}

type Dependencies struct {
	Config        Config
	Users         ports.UserRepository
	Sessions      ports.SessionRepository
	LoginAttempts ports.LoginAttemptRepository
	Outbox        ports.OutboxRepository
	Lockouts      ports.LockoutStore
	Revocations   ports.RevocationStore
	Hasher        ports.PasswordHasher
	Signer        ports.TokenSigner
	Clients       []domain.ServiceClient
}

func NewService(deps Dependencies) *Service {
	clients := make(map[string]domain.ServiceClient, len(deps.Clients))
	for _, c := range deps.Clients {
		clients[c.ClientID] = c
	}
	return &Service{
		cfg:           deps.Config,
		users:         deps.Users,
		sessions:      deps.Sessions,
		loginAttempts: deps.LoginAttempts,
		outbox:        deps.Outbox,
		lockouts:      deps.Lockouts,
		revocations:   deps.Revocations,
		hasher:        deps.Hasher,
		signer:        deps.Signer,
		clients:       clients,
		nowFn:         func() time.Time { return time.Now().UTC() },
	}
}

// PublicJWKs exposes the signer's published key set for the JWKS
// endpoint and the gRPC GetPublicKeys call.
func (s *Service) PublicJWKs() ([]map[string]any, error) {
	return s.signer.PublicJWKs()
}

func appLogger() *slog.Logger {
	return slog.Default().With(
		"module", "application",
		"layer", "application",
	)
}
