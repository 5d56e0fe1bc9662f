package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/politrack/sentinel/internal/models"
)

// MemoryCache is an in-process Cache for tests and cache-less deployments
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an in-memory dedup cache with the standard TTL
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]time.Time),
		ttl:     TTL,
		now:     time.Now,
	}
}

// SetClock overrides the time source, used by tests to exercise expiry
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCache) Seen(ctx context.Context, platform models.Platform, externalID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, ok := c.entries[Key(platform, externalID)]
	if !ok {
		return false, nil
	}
	if c.now().After(expiry) {
		delete(c.entries, Key(platform, externalID))
		return false, nil
	}
	return true, nil
}

func (c *MemoryCache) MarkIfUnseen(ctx context.Context, platform models.Platform, externalID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(platform, externalID)
	if expiry, ok := c.entries[key]; ok && c.now().Before(expiry) {
		return false, nil
	}
	c.entries[key] = c.now().Add(c.ttl)
	return true, nil
}

func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}
