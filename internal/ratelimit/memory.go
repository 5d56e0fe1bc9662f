package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/politrack/sentinel/internal/config"
	"github.com/politrack/sentinel/internal/models"
)

// MemoryLimiter implements sliding-window accounting in process. Used when no
// Redis backend is configured and by tests.
type MemoryLimiter struct {
	mu       sync.Mutex
	limits   map[models.Platform]config.RateLimit
	calls    map[models.Platform][]time.Time
	enforced bool
	now      func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates an in-process sliding-window limiter
func NewMemoryLimiter(limits map[models.Platform]config.RateLimit, enforced bool) *MemoryLimiter {
	return &MemoryLimiter{
		limits:   limits,
		calls:    make(map[models.Platform][]time.Time),
		enforced: enforced,
		now:      time.Now,
	}
}

// SetClock overrides the time source, used by tests to roll the window
func (l *MemoryLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *MemoryLimiter) Allow(ctx context.Context, platform models.Platform) (Decision, error) {
	limit, ok := l.limits[platform]
	if !ok {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-limit.Window)

	// Drop calls that slid out of the window
	recent := l.calls[platform][:0]
	for _, ts := range l.calls[platform] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	decision := Decision{Allowed: true}
	if len(recent) >= limit.MaxRequests {
		decision.Exceeded = true
		// MaxRequests 0 exhausts the window with no recorded calls, so
		// there is no oldest call to age out. Wait a full window.
		decision.RetryAfter = limit.Window
		if len(recent) > 0 {
			decision.RetryAfter = recent[0].Add(limit.Window).Sub(now)
		}
		if l.enforced {
			decision.Allowed = false
		}
	}

	// The call is accounted even in accounting-only mode; a rejected call
	// never consumes window budget.
	if decision.Allowed {
		recent = append(recent, now)
	}
	l.calls[platform] = recent

	decision.Remaining = limit.MaxRequests - len(recent)
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	return decision, nil
}
