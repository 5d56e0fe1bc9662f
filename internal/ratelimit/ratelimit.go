package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/politrack/sentinel/internal/config"
	"github.com/politrack/sentinel/internal/models"
)

// Decision is the outcome of one rate limit check. Accounting is always
// recorded; Allowed only becomes false when enforcement is turned on.
type Decision struct {
	Allowed    bool
	Exceeded   bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter bounds outbound API calls per platform. Counters are shared across
// all collector workers and updated atomically.
type Limiter interface {
	Allow(ctx context.Context, platform models.Platform) (Decision, error)
}

// RedisLimiter implements fixed-window accounting on Redis. The INCR and
// EXPIRE run in one pipeline so concurrent workers share a single counter.
type RedisLimiter struct {
	client   *redis.Client
	limits   map[models.Platform]config.RateLimit
	enforced bool
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a Redis-backed limiter from a Redis URL
func NewRedisLimiter(redisURL string, limits map[models.Platform]config.RateLimit, enforced bool) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &RedisLimiter{client: redis.NewClient(opts), limits: limits, enforced: enforced}, nil
}

func key(platform models.Platform, window time.Duration) string {
	bucket := time.Now().Unix() / int64(window.Seconds())
	return fmt.Sprintf("ratelimit:%s:%d", platform, bucket)
}

func (l *RedisLimiter) Allow(ctx context.Context, platform models.Platform) (Decision, error) {
	limit, ok := l.limits[platform]
	if !ok {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key(platform, limit.Window))
	pipe.Expire(ctx, key(platform, limit.Window), limit.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: allow the call rather than halting the pipeline
		logrus.Warnf("Rate limiter backend unavailable for %s, allowing call: %v", platform, err)
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	count := incr.Val()
	remaining := limit.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	decision := Decision{
		Allowed:   true,
		Exceeded:  count > int64(limit.MaxRequests),
		Remaining: remaining,
	}
	if decision.Exceeded {
		decision.RetryAfter = untilNextWindow(limit.Window)
		if l.enforced {
			decision.Allowed = false
		}
	}
	return decision, nil
}

// Close releases the underlying Redis connection
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

func untilNextWindow(window time.Duration) time.Duration {
	elapsed := time.Duration(time.Now().UnixNano()) % window
	return window - elapsed
}
