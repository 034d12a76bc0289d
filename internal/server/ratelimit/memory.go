package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a per-process sliding window limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time

	lastSweep time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)
	l.sweep(now, windowStart)

	// Drop entries that fell out of the window.
	valid := l.requests[key][:0]
	for _, t := range l.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= l.limit {
		l.requests[key] = valid
		return Result{Allowed: false, RetryAfter: valid[0].Add(l.window).Sub(now)}, nil
	}

	valid = append(valid, now)
	l.requests[key] = valid
	return Result{Allowed: true, Remaining: l.limit - len(valid)}, nil
}

// sweep forgets keys with no request inside the window. It runs at most once
// per window so Allow stays cheap.
func (l *MemoryLimiter) sweep(now, windowStart time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, times := range l.requests {
		if len(times) == 0 || !times[len(times)-1].After(windowStart) {
			delete(l.requests, key)
		}
	}
}
