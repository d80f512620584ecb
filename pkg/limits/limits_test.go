package limits

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asque/asque/pkg/apperrors"
	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/observability"
	"github.com/asque/asque/pkg/store"
)

type fakeUserReader struct {
	users    map[string]*store.User
	getCalls int
}

func (f *fakeUserReader) GetUser(ctx context.Context, id string) (*store.User, error) {
	f.getCalls++
	u, ok := f.users[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Resource: "user"}
	}
	return u, nil
}

func (f *fakeUserReader) IncrementQuoteCount(ctx context.Context, userID, email string) error {
	u, ok := f.users[userID]
	if !ok {
		u = &store.User{ID: userID, Email: email, SubscriptionStatus: store.SubscriptionFree}
		f.users[userID] = u
	}
	u.QuoteCount++
	return nil
}

func newTestService(users ...*store.User) (*Service, *fakeUserReader, cache.Store) {
	fr := &fakeUserReader{users: make(map[string]*store.User)}
	for _, u := range users {
		fr.users[u.ID] = u
	}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	cacheStore := cache.NewMemoryStore(logger)
	svc := NewService(fr, cacheStore, logger, observability.NewMetrics(prometheus.NewRegistry()))
	return svc, fr, cacheStore
}

func TestCheckQuoteLimitFreeUnderCeiling(t *testing.T) {
	svc, _, _ := newTestService(&store.User{ID: "u1", SubscriptionStatus: store.SubscriptionFree, QuoteCount: 9})
	assert.NoError(t, svc.CheckQuoteLimit(context.Background(), "u1"))
}

func TestCheckQuoteLimitFreeAtCeiling(t *testing.T) {
	svc, _, _ := newTestService(&store.User{ID: "u1", SubscriptionStatus: store.SubscriptionFree, QuoteCount: 10})

	err := svc.CheckQuoteLimit(context.Background(), "u1")
	require.Error(t, err)

	var quota *apperrors.QuotaExceededError
	require.ErrorAs(t, err, &quota)
	assert.Equal(t, 10, quota.Current)
	assert.Equal(t, MaxFreeQuotes, quota.Limit)
}

func TestCheckQuoteLimitProAlwaysPasses(t *testing.T) {
	svc, _, _ := newTestService(&store.User{ID: "u1", SubscriptionStatus: store.SubscriptionPro, QuoteCount: 500})
	assert.NoError(t, svc.CheckQuoteLimit(context.Background(), "u1"))
}

func TestCheckQuoteLimitMissingUserPasses(t *testing.T) {
	svc, _, _ := newTestService()
	assert.NoError(t, svc.CheckQuoteLimit(context.Background(), "new-user"))
}

func TestCheckQuoteLimitReadsFreshly(t *testing.T) {
	u := &store.User{ID: "u1", SubscriptionStatus: store.SubscriptionFree, QuoteCount: 9}
	svc, fr, _ := newTestService(u)
	ctx := context.Background()

	require.NoError(t, svc.CheckQuoteLimit(ctx, "u1"))
	require.NoError(t, svc.IncrementQuoteCount(ctx, "u1", "u1@example.com"))
	require.Error(t, svc.CheckQuoteLimit(ctx, "u1"))
	assert.Equal(t, 2, fr.getCalls, "the gate must hit persistence every time")
}

func TestGetUserSubscriptionCachesResult(t *testing.T) {
	end := time.Now().Add(15 * 24 * time.Hour)
	svc, fr, _ := newTestService(&store.User{
		ID: "u1", SubscriptionStatus: store.SubscriptionPro, SubscriptionEnds: &end,
	})
	ctx := context.Background()

	first, err := svc.GetUserSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, store.SubscriptionPro, first.Status)

	second, err := svc.GetUserSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, 1, fr.getCalls, "second read must come from cache")
}

func TestGetUserSubscriptionMissingUserIsFree(t *testing.T) {
	svc, _, _ := newTestService()

	info, err := svc.GetUserSubscription(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, store.SubscriptionFree, info.Status)
	assert.Nil(t, info.PeriodEnd)
}

func TestGetUserSubscriptionInvalidatedByUserTag(t *testing.T) {
	svc, fr, cacheStore := newTestService(&store.User{ID: "u1", SubscriptionStatus: store.SubscriptionFree})
	ctx := context.Background()

	_, err := svc.GetUserSubscription(ctx, "u1")
	require.NoError(t, err)

	fr.users["u1"].SubscriptionStatus = store.SubscriptionPro
	cacheStore.InvalidateTag(ctx, cache.TagSubscription("u1"))

	info, err := svc.GetUserSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, store.SubscriptionPro, info.Status)
	assert.Equal(t, 2, fr.getCalls)
}
