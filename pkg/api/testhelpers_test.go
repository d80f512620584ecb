package api

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/asque/asque/pkg/apperrors"
	"github.com/asque/asque/pkg/billing"
	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/config"
	"github.com/asque/asque/pkg/limits"
	"github.com/asque/asque/pkg/middleware"
	"github.com/asque/asque/pkg/observability"
	"github.com/asque/asque/pkg/ratelimit"
	"github.com/asque/asque/pkg/store"
)

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*store.User
	clients  map[string]*store.Client
	products map[string]*store.Product
	quotes   map[string]*store.Quote
	settings map[string]*store.Settings

	failNext error // next call returns this error once
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*store.User),
		clients:  make(map[string]*store.Client),
		products: make(map[string]*store.Product),
		quotes:   make(map[string]*store.Quote),
		settings: make(map[string]*store.Settings),
	}
}

func (m *memStore) takeErr() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memStore) UpsertUser(ctx context.Context, id, email string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		u = &store.User{ID: id, SubscriptionStatus: store.SubscriptionFree, CreatedAt: time.Now()}
		m.users[id] = u
	}
	u.Email = email
	return u, nil
}

func (m *memStore) GetUser(ctx context.Context, id string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Resource: "user"}
	}
	return u, nil
}

func (m *memStore) GetUserByStripeCustomer(ctx context.Context, customerID string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.StripeCustomerID == customerID {
			return u, nil
		}
	}
	return nil, &apperrors.NotFoundError{Resource: "user"}
}

func (m *memStore) UpdateSubscription(ctx context.Context, userID string, status store.SubscriptionStatus, periodEnd *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return &apperrors.NotFoundError{Resource: "user"}
	}
	u.SubscriptionStatus = status
	u.SubscriptionEnds = periodEnd
	return nil
}

func (m *memStore) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return &apperrors.NotFoundError{Resource: "user"}
	}
	u.StripeCustomerID = customerID
	return nil
}

func (m *memStore) IncrementQuoteCount(ctx context.Context, userID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		u = &store.User{ID: userID, Email: email, SubscriptionStatus: store.SubscriptionFree}
		m.users[userID] = u
	}
	u.QuoteCount++
	return nil
}

func (m *memStore) SoftDeleteUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return &apperrors.NotFoundError{Resource: "user"}
	}
	now := time.Now()
	u.DeletedAt = &now
	return nil
}

func (m *memStore) PurgeDeletedUsers(ctx context.Context, deletedBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, u := range m.users {
		if u.DeletedAt != nil && u.DeletedAt.Before(deletedBefore) {
			delete(m.users, id)
			purged++
		}
	}
	return purged, nil
}

func (m *memStore) CreateClient(ctx context.Context, c *store.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	for _, existing := range m.clients {
		if existing.UserID == c.UserID && existing.Name == c.Name {
			return &apperrors.ConflictError{Field: "name"}
		}
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.clients[c.ID] = c
	return nil
}

func (m *memStore) ListClients(ctx context.Context, userID string) ([]*store.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return nil, err
	}
	out := make([]*store.Client, 0)
	for _, c := range m.clients {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetClient(ctx context.Context, userID, id string) (*store.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok || c.UserID != userID {
		return nil, &apperrors.NotFoundError{Resource: "client"}
	}
	return c, nil
}

func (m *memStore) UpdateClient(ctx context.Context, c *store.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.clients[c.ID]
	if !ok || existing.UserID != c.UserID {
		return &apperrors.NotFoundError{Resource: "client"}
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()
	m.clients[c.ID] = c
	return nil
}

func (m *memStore) DeleteClient(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok || c.UserID != userID {
		return &apperrors.NotFoundError{Resource: "client"}
	}
	delete(m.clients, id)
	return nil
}

func (m *memStore) CreateProduct(ctx context.Context, p *store.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.products[p.ID] = p
	return nil
}

func (m *memStore) ListProducts(ctx context.Context, userID string) ([]*store.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.Product, 0)
	for _, p := range m.products {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetProduct(ctx context.Context, userID, id string) (*store.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.UserID != userID {
		return nil, &apperrors.NotFoundError{Resource: "product"}
	}
	return p, nil
}

func (m *memStore) UpdateProduct(ctx context.Context, p *store.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.products[p.ID]
	if !ok || existing.UserID != p.UserID {
		return &apperrors.NotFoundError{Resource: "product"}
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()
	m.products[p.ID] = p
	return nil
}

func (m *memStore) DeleteProduct(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.UserID != userID {
		return &apperrors.NotFoundError{Resource: "product"}
	}
	delete(m.products, id)
	return nil
}

func (m *memStore) CreateQuote(ctx context.Context, q *store.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	if _, ok := m.clients[q.ClientID]; !ok {
		return &apperrors.ReferenceError{Field: "client_id"}
	}
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	m.quotes[q.ID] = q
	return nil
}

func (m *memStore) ListQuotes(ctx context.Context, userID string) ([]*store.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.Quote, 0)
	for _, q := range m.quotes {
		if q.UserID == userID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memStore) GetQuote(ctx context.Context, userID, id string) (*store.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok || q.UserID != userID {
		return nil, &apperrors.NotFoundError{Resource: "quote"}
	}
	return q, nil
}

func (m *memStore) UpdateQuoteStatus(ctx context.Context, userID, id string, status store.QuoteStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok || q.UserID != userID {
		return &apperrors.NotFoundError{Resource: "quote"}
	}
	q.Status = status
	return nil
}

func (m *memStore) DeleteQuote(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok || q.UserID != userID {
		return &apperrors.NotFoundError{Resource: "quote"}
	}
	delete(m.quotes, id)
	return nil
}

func (m *memStore) CountQuotesInMonth(ctx context.Context, userID string, year int, month time.Month) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, q := range m.quotes {
		if q.UserID == userID && q.CreatedAt.Year() == year && q.CreatedAt.Month() == month {
			count++
		}
	}
	return count, nil
}

func (m *memStore) GetSettings(ctx context.Context, userID string) (*store.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.settings[userID]
	if !ok {
		st = &store.Settings{
			UserID:         userID,
			TaxRate:        store.DefaultTaxRate,
			Currency:       store.DefaultCurrency,
			QuoteValidDays: store.DefaultQuoteValidDays,
			CreatedAt:      time.Now(),
		}
		m.settings[userID] = st
	}
	return st, nil
}

func (m *memStore) UpsertSettings(ctx context.Context, st *store.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.UpdatedAt = time.Now()
	m.settings[st.UserID] = st
	return nil
}

func (m *memStore) Close() error { return nil }

// stubProvider is a no-op payment provider.
type stubProvider struct {
	subscriptions map[string][]billing.Subscription
	customers     map[string]*billing.Customer
}

func (p *stubProvider) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	return &billing.CheckoutSession{ID: "cs_test", URL: "https://checkout.example/cs_test"}, nil
}

func (p *stubProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*billing.PortalSession, error) {
	return &billing.PortalSession{ID: "bps_test", URL: "https://portal.example/" + customerID}, nil
}

func (p *stubProvider) ListActiveSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	return p.subscriptions[customerID], nil
}

func (p *stubProvider) FindCustomerByEmail(ctx context.Context, email string) (*billing.Customer, error) {
	if p.customers == nil {
		return nil, nil
	}
	return p.customers[email], nil
}

const testWebhookSecret = "whsec_test_secret"

type testEnv struct {
	server   *Server
	store    *memStore
	cache    cache.Store
	limiter  ratelimit.Limiter
	provider *stubProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	st := newMemStore()
	cacheStore := cache.NewMemoryStore(logger)
	limiter := ratelimit.NewMemoryLimiter()
	provider := &stubProvider{}

	cfg := &config.Config{
		Environment: "development",
		Server: config.ServerConfig{
			AllowedOrigins: []string{"*"},
		},
		Stripe: config.StripeConfig{
			WebhookSecret: testWebhookSecret,
			AppURL:        "https://app.example",
			ProPriceCents: 500,
		},
	}

	billingSvc := billing.NewService(st, cacheStore, provider, logger, metrics, cfg.Stripe.AppURL, cfg.Stripe.ProPriceCents)
	limitsSvc := limits.NewService(st, cacheStore, logger, metrics)

	verifier := &middleware.StaticVerifier{Tokens: map[string]*middleware.AuthContext{
		"tok-u1": {UserID: "u1", Email: "u1@example.com"},
		"tok-u2": {UserID: "u2", Email: "u2@example.com"},
	}}

	server := NewServer(cfg, st, cacheStore, limiter, limitsSvc, billingSvc, verifier, logger, metrics)
	return &testEnv{server: server, store: st, cache: cacheStore, limiter: limiter, provider: provider}
}

// seedUser inserts a user directly.
func (e *testEnv) seedUser(u *store.User) {
	e.store.users[u.ID] = u
}

// seedClient inserts a client directly.
func (e *testEnv) seedClient(c *store.Client) {
	e.store.clients[c.ID] = c
}

// resetRate clears one user's window for a class so tests can isolate
// quota behavior from rate limiting.
func (e *testEnv) resetRate(class ratelimit.Class, userID string) {
	_ = e.limiter.Reset(context.Background(), ratelimit.Key(class, userID))
}

var _ store.Store = (*memStore)(nil)

var errBoom = fmt.Errorf("boom")
