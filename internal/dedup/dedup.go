package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/politrack/sentinel/internal/models"
)

// TTL is how long a collected post stays marked as seen. After expiry the post
// may be fetched again; the store's unique index keeps re-ingestion idempotent.
const TTL = 7 * 24 * time.Hour

// Cache is the single source of truth for "already collected".
// Implementations must be safe for concurrent use by collector workers.
type Cache interface {
	// Seen reports whether the post was already collected within the TTL.
	Seen(ctx context.Context, platform models.Platform, externalID string) (bool, error)
	// MarkIfUnseen atomically marks the post as collected and reports whether
	// this caller won the mark. Two workers racing on the same post cannot
	// both observe true.
	MarkIfUnseen(ctx context.Context, platform models.Platform, externalID string) (bool, error)
	Ping(ctx context.Context) error
}

// Key builds the cache key for a platform post
func Key(platform models.Platform, externalID string) string {
	return fmt.Sprintf("post:%s:%s", platform, externalID)
}

// RedisCache implements Cache using go-redis/v9
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a RedisCache from a Redis URL
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts), ttl: TTL}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Seen(ctx context.Context, platform models.Platform, externalID string) (bool, error) {
	n, err := c.client.Exists(ctx, Key(platform, externalID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup exists: %w", err)
	}
	return n > 0, nil
}

func (c *RedisCache) MarkIfUnseen(ctx context.Context, platform models.Platform, externalID string) (bool, error) {
	won, err := c.client.SetNX(ctx, Key(platform, externalID), "1", c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return won, nil
}

// Close releases the underlying Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// FailOpen wraps a Cache so that backend failures degrade to "always miss":
// duplicates are tolerable, data loss is not.
type FailOpen struct {
	inner Cache
}

var _ Cache = (*FailOpen)(nil)

// NewFailOpen wraps the given cache with permissive error handling
func NewFailOpen(inner Cache) *FailOpen {
	return &FailOpen{inner: inner}
}

func (f *FailOpen) Seen(ctx context.Context, platform models.Platform, externalID string) (bool, error) {
	seen, err := f.inner.Seen(ctx, platform, externalID)
	if err != nil {
		logrus.Warnf("Dedup cache unavailable, collecting anyway: %v", err)
		return false, nil
	}
	return seen, nil
}

func (f *FailOpen) MarkIfUnseen(ctx context.Context, platform models.Platform, externalID string) (bool, error) {
	won, err := f.inner.MarkIfUnseen(ctx, platform, externalID)
	if err != nil {
		logrus.Warnf("Dedup cache unavailable, skipping mark: %v", err)
		return true, nil
	}
	return won, nil
}

func (f *FailOpen) Ping(ctx context.Context) error {
	return f.inner.Ping(ctx)
}
