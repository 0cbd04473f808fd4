package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/support-desk/internal/domain"
)

const slaSnapshotKey = "report:sla"

// RedisSnapshotCache keeps the latest SLA snapshot in Redis.
type RedisSnapshotCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisSnapshotCache builds the cache. A zero ttl keeps entries until invalidated.
func NewRedisSnapshotCache(client redis.UniversalClient, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

// Get returns nil without error on a cache miss.
func (c *RedisSnapshotCache) Get(ctx context.Context) (*domain.SLASnapshot, error) {
	raw, err := c.client.Get(ctx, slaSnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sla snapshot: %w", err)
	}
	var snapshot domain.SLASnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode sla snapshot: %w", err)
	}
	return &snapshot, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, snapshot *domain.SLASnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode sla snapshot: %w", err)
	}
	return c.client.Set(ctx, slaSnapshotKey, raw, c.ttl).Err()
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, slaSnapshotKey).Err()
}
