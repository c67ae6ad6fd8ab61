package space

import (
	"sync"
	"time"
)

// RateLimiter enforces a minimum interval between chat sends per user.
// A single timestamp is shared across all chat paths (broadcast, whisper,
// party) so switching paths cannot evade the limit.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter with the given minimum interval.
// A non-positive window disables limiting.
func NewRateLimiter(window time.Duration) *RateLimiter {
	return &RateLimiter{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// SetClock replaces the limiter's clock. Intended for tests.
func (l *RateLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow reports whether the user may send now, updating the user's
// timestamp when permitted. Denied sends do not update the timestamp.
func (l *RateLimiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.window <= 0 {
		return true
	}

	now := l.now()
	if last, ok := l.last[userID]; ok && now.Sub(last) < l.window {
		return false
	}
	l.last[userID] = now
	return true
}

// Forget drops the user's timestamp, typically on disconnect.
func (l *RateLimiter) Forget(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.last, userID)
}
