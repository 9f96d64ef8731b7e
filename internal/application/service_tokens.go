package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shopmesh/auth/internal/domain"
)

// IssueServiceToken exchanges static client credentials for a
// scope="service" token. Service tokens carry no session row; rotating
// the client secret is the only revocation lever.
func (s *Service) IssueServiceToken(ctx context.Context, clientID, clientSecret string) (ServiceTokenResponse, error) {
	client, ok := s.clients[clientID]
	if !ok {
		appLogger().WarnContext(ctx, "unknown service client",
			"operation", "issue_service_token",
			"outcome", "denied",
			"client_id", clientID,
		)
		return ServiceTokenResponse{}, domain.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(client.SecretHash, clientSecret); err != nil {
		appLogger().WarnContext(ctx, "service client secret mismatch",
			"operation", "issue_service_token",
			"outcome", "denied",
			"client_id", clientID,
		)
		return ServiceTokenResponse{}, domain.ErrInvalidCredentials
	}

	now := s.nowFn()
	token, err := s.signer.Sign(s.serviceClaims(clientID, uuid.New(), now))
	if err != nil {
		return ServiceTokenResponse{}, fmt.Errorf("sign service token: %w", err)
	}

	appLogger().InfoContext(ctx, "service token issued",
		"operation", "issue_service_token",
		"outcome", "success",
		"client_id", clientID,
		"expires_in_seconds", int64(s.cfg.ServiceTokenTTL.Seconds()),
	)
	return ServiceTokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.cfg.ServiceTokenTTL.Seconds()),
	}, nil
}
