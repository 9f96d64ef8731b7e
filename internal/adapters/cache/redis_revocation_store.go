package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shopmesh/auth"
)

// RedisRevocationStore keeps revoked token ids hot so verifiers reject
// them without a database round trip. Keys expire with the token itself.
type RedisRevocationStore struct {
	client *redis.Client
}

func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

func (s *RedisRevocationStore) MarkRevoked(ctx context.Context, jti uuid.UUID, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Hour
	}
	return s.client.Set(ctx, auth.RevokedKeyPrefix+jti.String(), "1", ttl).Err()
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, auth.RevokedKeyPrefix+jti.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
