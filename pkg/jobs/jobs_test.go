package jobs

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/observability"
	"github.com/asque/asque/pkg/ratelimit"
)

type fakePurger struct {
	cutoff time.Time
	purged int64
	calls  int
}

func (f *fakePurger) PurgeDeletedUsers(ctx context.Context, deletedBefore time.Time) (int64, error) {
	f.calls++
	f.cutoff = deletedBefore
	return f.purged, nil
}

func newTestScheduler(purger *fakePurger) (*Scheduler, cache.Store, ratelimit.Limiter) {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cacheStore := cache.NewMemoryStore(logger)
	limiter := ratelimit.NewMemoryLimiter()
	return NewScheduler(cacheStore, limiter, purger, logger, metrics), cacheStore, limiter
}

func TestSweepCachePurgesExpiredEntries(t *testing.T) {
	s, cacheStore, _ := newTestScheduler(&fakePurger{})
	ctx := context.Background()

	cacheStore.Set(ctx, "stale", []byte("v"), -time.Second)
	cacheStore.Set(ctx, "fresh", []byte("v"), time.Minute)

	s.sweepCache()

	_, ok := cacheStore.Get(ctx, "fresh")
	assert.True(t, ok)
	_, ok = cacheStore.Get(ctx, "stale")
	assert.False(t, ok)
}

func TestSweepLimiterDropsIdleWindows(t *testing.T) {
	s, _, limiter := newTestScheduler(&fakePurger{})
	ctx := context.Background()

	_, err := limiter.Check(ctx, "k1", ratelimit.Config{Window: time.Minute, MaxRequests: 5})
	require.NoError(t, err)

	// Nothing is older than an hour yet.
	s.sweepLimiter()
	result, err := limiter.Check(ctx, "k1", ratelimit.Config{Window: time.Minute, MaxRequests: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Remaining, "window must have survived the sweep")
}

func TestPurgeDeletedUsersUsesRetentionCutoff(t *testing.T) {
	purger := &fakePurger{purged: 2}
	s, _, _ := newTestScheduler(purger)

	before := time.Now().Add(-purgeRetention)
	s.purgeDeletedUsers()

	assert.Equal(t, 1, purger.calls)
	assert.WithinDuration(t, before, purger.cutoff, time.Minute)
}

func TestSchedulerStartStop(t *testing.T) {
	s, _, _ := newTestScheduler(&fakePurger{})
	require.NoError(t, s.Start())
	s.Stop()
}
