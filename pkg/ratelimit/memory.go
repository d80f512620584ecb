package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps a per-key ordered sequence of request timestamps.
// Shared across concurrent handlers in one process, guarded by a mutex.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Check prunes timestamps outside the window, admits the request if fewer
// than MaxRequests remain, and records admitted requests.
func (l *MemoryLimiter) Check(ctx context.Context, key string, cfg Config) (Result, error) {
	now := l.now()
	windowStart := now.Add(-cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.windows[key][:0]
	for _, ts := range l.windows[key] {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}

	count := len(kept)
	allowed := count < cfg.MaxRequests
	if allowed {
		kept = append(kept, now)
	}
	l.windows[key] = kept

	remaining := cfg.MaxRequests - count
	if allowed {
		remaining--
	}
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now.Add(cfg.Window)
	if len(kept) > 0 {
		resetAt = kept[0].Add(cfg.Window)
	}

	return Result{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}, nil
}

// Reset clears the window for key.
func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
	return nil
}

// Cleanup drops keys whose timestamps are all older than maxIdle, bounding
// memory from one-off identifiers. The jobs scheduler runs this every five
// minutes with a one-hour idle cutoff.
func (l *MemoryLimiter) Cleanup(ctx context.Context, maxIdle time.Duration) int {
	cutoff := l.now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, stamps := range l.windows {
		kept := stamps[:0]
		for _, ts := range stamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(l.windows, key)
			removed++
		} else {
			l.windows[key] = kept
		}
	}
	return removed
}

// StartCleanup runs Cleanup on the given interval until ctx is cancelled.
func (l *MemoryLimiter) StartCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				l.Cleanup(ctx, maxIdle)
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}
