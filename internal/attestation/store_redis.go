package attestation

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"provenance/pkg/domain"
	"provenance/pkg/platform/sentinel"
)

// RedisTokenStore persists attestation tokens in Redis. Tokens carry their own
// expiry in the JWT claims, so entries are stored without a TTL and validated
// on read.
type RedisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func tokenKey(id domain.EvidenceID) string {
	return "attestation:" + id.String()
}

func (s *RedisTokenStore) Save(ctx context.Context, id domain.EvidenceID, token string) error {
	if err := s.client.Set(ctx, tokenKey(id), token, 0).Err(); err != nil {
		return fmt.Errorf("save attestation token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Find(ctx context.Context, id domain.EvidenceID) (string, error) {
	token, err := s.client.Get(ctx, tokenKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("find attestation token: %w", err)
	}
	return token, nil
}
