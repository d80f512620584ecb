// Package jobs runs the background maintenance schedule: periodic
// cache and rate-limiter sweeps plus retention cleanup of soft-deleted
// users.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/observability"
	"github.com/asque/asque/pkg/ratelimit"
)

const (
	// cacheSweepSpec purges expired cache entries every two minutes.
	cacheSweepSpec = "@every 2m"
	// limiterSweepSpec drops idle rate-limit windows every five minutes.
	limiterSweepSpec = "@every 5m"
	// limiterMaxIdle is how long a window may sit idle before removal.
	limiterMaxIdle = 1 * time.Hour
	// purgeSpec removes soft-deleted users once a day.
	purgeSpec = "@daily"
	// purgeRetention is how long a soft-deleted user is kept.
	purgeRetention = 15 * 24 * time.Hour
)

// UserPurger deletes users soft-deleted before the cutoff.
type UserPurger interface {
	PurgeDeletedUsers(ctx context.Context, deletedBefore time.Time) (int64, error)
}

// Scheduler owns the cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	cache   cache.Store
	limiter ratelimit.Limiter
	purger  UserPurger
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewScheduler creates the scheduler without starting it.
func NewScheduler(cacheStore cache.Store, limiter ratelimit.Limiter, purger UserPurger, logger *observability.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		cache:   cacheStore,
		limiter: limiter,
		purger:  purger,
		logger:  logger.WithField("component", "jobs"),
		metrics: metrics,
	}
}

// Start registers the jobs and begins the schedule.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(cacheSweepSpec, s.sweepCache); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(limiterSweepSpec, s.sweepLimiter); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(purgeSpec, s.purgeDeletedUsers); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("background jobs scheduled")
	return nil
}

// Stop halts the schedule and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("background jobs stopped")
}

func (s *Scheduler) sweepCache() {
	removed := s.cache.Cleanup(context.Background())
	if removed > 0 {
		s.metrics.CacheEvictionsTotal.WithLabelValues("memory", "sweep").Add(float64(removed))
		s.logger.WithField("removed", removed).Debug("cache sweep completed")
	}
}

func (s *Scheduler) sweepLimiter() {
	removed := s.limiter.Cleanup(context.Background(), limiterMaxIdle)
	if removed > 0 {
		s.logger.WithField("removed", removed).Debug("rate limiter sweep completed")
	}
}

func (s *Scheduler) purgeDeletedUsers() {
	cutoff := time.Now().Add(-purgeRetention)
	purged, err := s.purger.PurgeDeletedUsers(context.Background(), cutoff)
	if err != nil {
		s.logger.WithError(err).Error("user purge failed")
		return
	}
	if purged > 0 {
		s.logger.WithField("purged", purged).Info("soft-deleted users purged")
	}
}
