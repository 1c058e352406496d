// Package cache provides a Redis-backed cache of compliance classifications so
// read-heavy callers (dashboards, list views) do not trigger a full
// verification pass per request. Entries expire on a short TTL; a fresh pass
// always overwrites.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"provenance/internal/evidence"
	"provenance/pkg/domain"
	"provenance/pkg/platform/sentinel"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func complianceKey(id domain.EvidenceID) string {
	return "compliance:" + id.String()
}

// Save stores the classification for the record.
func (c *Cache) Save(ctx context.Context, id domain.EvidenceID, level evidence.ComplianceLevel) error {
	if err := c.client.Set(ctx, complianceKey(id), string(level), c.ttl).Err(); err != nil {
		return fmt.Errorf("cache compliance level: %w", err)
	}
	return nil
}

// Find returns the cached classification, or sentinel.ErrNotFound when the
// entry is missing or expired.
func (c *Cache) Find(ctx context.Context, id domain.EvidenceID) (evidence.ComplianceLevel, error) {
	val, err := c.client.Get(ctx, complianceKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("read cached compliance level: %w", err)
	}
	return evidence.ComplianceLevel(val), nil
}
