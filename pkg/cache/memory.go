package cache

import (
	"context"
	"sync"
	"time"

	"github.com/asque/asque/pkg/observability"
)

type entry struct {
	value     []byte
	expiresAt time.Time
	tags      map[string]struct{}
}

// MemoryStore is an in-process TTL store. Entries expire lazily on Get and
// proactively via Cleanup, which the jobs scheduler runs every two minutes.
//
// The store is shared across concurrent request handlers, so access is
// guarded by an RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *observability.Logger) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		logger:  logger,
		now:     time.Now,
	}
}

// SetMetrics enables hit/miss/eviction counters.
func (s *MemoryStore) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Get returns the value for key. Expired entries are evicted and reported
// as misses.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.countMiss()
		s.logger.WithField("key", key).Debug("cache MISS")
		return nil, false
	}

	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		s.countMiss()
		s.logger.WithField("key", key).Debug("cache EXPIRED")
		return nil, false
	}

	if s.metrics != nil {
		s.metrics.CacheHitsTotal.WithLabelValues("memory").Inc()
	}
	s.logger.WithField("key", key).Debug("cache HIT")
	return e.value, true
}

// Set unconditionally overwrites key.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) {
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}

	s.mu.Lock()
	s.entries[key] = entry{
		value:     value,
		expiresAt: s.now().Add(ttl),
		tags:      tagSet,
	}
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"key": key, "ttl": ttl.String(), "tags": tags,
	}).Debug("cache SET")
}

// Delete removes key, idempotently.
func (s *MemoryStore) Delete(ctx context.Context, key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	s.logger.WithField("key", key).Debug("cache DELETE")
}

// InvalidateTag removes every entry tagged with tag.
func (s *MemoryStore) InvalidateTag(ctx context.Context, tag string) int {
	s.mu.Lock()
	count := 0
	for key, e := range s.entries {
		if _, ok := e.tags[tag]; ok {
			delete(s.entries, key)
			count++
		}
	}
	s.mu.Unlock()

	if s.metrics != nil && count > 0 {
		s.metrics.CacheEvictionsTotal.WithLabelValues("memory", "tag").Add(float64(count))
	}
	s.logger.WithFields(map[string]interface{}{
		"tag": tag, "entries_invalidated": count,
	}).Info("cache tag invalidation")
	return count
}

// Clear removes everything.
func (s *MemoryStore) Clear(ctx context.Context) {
	s.mu.Lock()
	count := len(s.entries)
	s.entries = make(map[string]entry)
	s.mu.Unlock()
	s.logger.WithField("entries_cleared", count).Info("cache cleared")
}

// Cleanup purges expired entries. Bounds memory growth from keys that are
// set but never re-read.
func (s *MemoryStore) Cleanup(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	cleaned := 0
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
			cleaned++
		}
	}
	s.mu.Unlock()

	if cleaned > 0 {
		s.logger.WithField("entries_removed", cleaned).Debug("cache cleanup")
	}
	return cleaned
}

// Len returns the number of live and expired-but-unswept entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) countMiss() {
	if s.metrics != nil {
		s.metrics.CacheMissesTotal.WithLabelValues("memory").Inc()
	}
}

// StartCleanup runs Cleanup on the given interval until ctx is cancelled.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup(ctx)
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}
