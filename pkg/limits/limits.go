// Package limits enforces the free-tier usage quota and serves the
// cached subscription view used for tier selection and status display.
package limits

import (
	"context"
	"time"

	"github.com/asque/asque/pkg/apperrors"
	"github.com/asque/asque/pkg/billing"
	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/observability"
	"github.com/asque/asque/pkg/store"
)

// MaxFreeQuotes is the quote ceiling on the free plan.
const MaxFreeQuotes = 10

// subscriptionTTL matches the sync-side cache refresh.
const subscriptionTTL = 5 * time.Minute

// UserReader is the slice of persistence the policy needs.
type UserReader interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	IncrementQuoteCount(ctx context.Context, userID, email string) error
}

// Service implements the usage and subscription policy.
type Service struct {
	store   UserReader
	cache   cache.Store
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates the policy service.
func NewService(st UserReader, cacheStore cache.Store, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:   st,
		cache:   cacheStore,
		logger:  logger.WithField("component", "limits"),
		metrics: metrics,
	}
}

// CheckQuoteLimit decides whether the user may create another quote.
// It reads freshly from persistence since it gates a write and must see
// the latest count. PRO always passes; FREE passes below the ceiling; a
// user record that does not exist yet counts as zero usage.
func (s *Service) CheckQuoteLimit(ctx context.Context, userID string) error {
	u, err := s.store.GetUser(ctx, userID)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if u.SubscriptionStatus == store.SubscriptionPro {
		return nil
	}
	if u.QuoteCount < MaxFreeQuotes {
		return nil
	}

	s.metrics.QuotaRejectionsTotal.Inc()
	s.logger.WithFields(map[string]interface{}{
		"user_id":     userID,
		"quote_count": u.QuoteCount,
	}).Warn("free-tier quote quota exceeded")
	return &apperrors.QuotaExceededError{Current: u.QuoteCount, Limit: MaxFreeQuotes}
}

// IncrementQuoteCount records one successful quote creation. Call it
// after the quote persists, never before.
func (s *Service) IncrementQuoteCount(ctx context.Context, userID, email string) error {
	return s.store.IncrementQuoteCount(ctx, userID, email)
}

// GetUserSubscription returns the user's subscription state, serving
// from cache for up to five minutes before falling back to persistence.
// An unknown user reads as FREE.
func (s *Service) GetUserSubscription(ctx context.Context, userID string) (*billing.SubscriptionInfo, error) {
	key := cache.KeyUserSubscription(userID)

	info := &billing.SubscriptionInfo{}
	if cache.GetJSON(ctx, s.cache, key, info) {
		return info, nil
	}

	u, err := s.store.GetUser(ctx, userID)
	if apperrors.IsNotFound(err) {
		return &billing.SubscriptionInfo{Status: store.SubscriptionFree}, nil
	}
	if err != nil {
		return nil, err
	}

	info = &billing.SubscriptionInfo{
		Status:    u.SubscriptionStatus,
		PeriodEnd: u.SubscriptionEnds,
	}
	cache.SetJSON(ctx, s.cache, key, info, subscriptionTTL,
		cache.TagUser(userID), cache.TagSubscription(userID))
	return info, nil
}
