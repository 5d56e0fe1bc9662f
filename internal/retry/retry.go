package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// MaxAttempts bounds how many times a single platform call is tried
	MaxAttempts = 3
	// MaxDelay caps the exponential backoff between attempts
	MaxDelay = 30 * time.Second
)

// AuthError marks a non-retryable authentication or configuration failure.
// Operators need to tell these apart from transient outages.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Message)
}

// StatusError carries an unexpected HTTP status from a platform API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Permanent wraps an error so Do gives up immediately
type Permanent struct {
	Err error
}

func (e *Permanent) Error() string { return e.Err.Error() }
func (e *Permanent) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is a transient network or server
// failure. Auth and validation errors are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var perm *Permanent
	if errors.As(err, &perm) {
		return false
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		// 5xx and 429 are transient, remaining 4xx are caller mistakes
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// Delay returns the backoff slept before attempt n (1-based):
// min(2^n, 30) seconds. Attempt 2 waits 4s, attempt 3 waits 8s.
func Delay(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}

// Do runs op with bounded exponential backoff. Transient failures are retried
// up to MaxAttempts; the terminal error is the last one observed.
func Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := Delay(attempt)
			logrus.Debugf("Retrying %s in %v (attempt %d/%d)", name, delay, attempt, MaxAttempts)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) {
			return lastErr
		}
		logrus.Warnf("Transient failure in %s (attempt %d/%d): %v", name, attempt, MaxAttempts, lastErr)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, MaxAttempts, lastErr)
}
