package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/asque/asque/pkg/apperrors"
	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/observability"
	"github.com/asque/asque/pkg/retry"
	"github.com/asque/asque/pkg/store"
)

const (
	// subscriptionTTL bounds staleness of the cached subscription view.
	subscriptionTTL = 5 * time.Minute

	// syncAttempts and syncRetryDelay bound the provider list call.
	syncAttempts   = 3
	syncRetryDelay = 1 * time.Second

	// checkoutPeriod is the provisional PRO period granted on checkout
	// completion; the first invoice webhook replaces it with the real one.
	checkoutPeriod = 30 * 24 * time.Hour

	// seenEventsSize bounds the webhook duplicate-suppression window.
	seenEventsSize = 4096
	seenEventsTTL  = 24 * time.Hour
)

// SubscriptionInfo is the reconciled subscription state of a user.
type SubscriptionInfo struct {
	Status    store.SubscriptionStatus `json:"subscriptionStatus"`
	PeriodEnd *time.Time               `json:"subscriptionEnds,omitempty"`
}

// UserStore is the slice of persistence the billing service needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	UpsertUser(ctx context.Context, id, email string) (*store.User, error)
	GetUserByStripeCustomer(ctx context.Context, customerID string) (*store.User, error)
	UpdateSubscription(ctx context.Context, userID string, status store.SubscriptionStatus, periodEnd *time.Time) error
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error
}

// Service reconciles local subscription state against the payment
// provider and reacts to its webhook events.
type Service struct {
	store       UserStore
	cache       cache.Store
	provider    Provider
	logger      *observability.Logger
	metrics     *observability.Metrics
	retryPolicy retry.Policy

	appURL        string
	proPriceCents int64

	// seenEvents suppresses redelivered webhook events by id.
	seenEvents *expirable.LRU[string, struct{}]

	now func() time.Time
}

// NewService creates the billing service.
func NewService(st UserStore, cacheStore cache.Store, provider Provider, logger *observability.Logger, metrics *observability.Metrics, appURL string, proPriceCents int64) *Service {
	return &Service{
		store:         st,
		cache:         cacheStore,
		provider:      provider,
		logger:        logger.WithField("component", "billing"),
		metrics:       metrics,
		retryPolicy:   retry.FixedDelay(syncAttempts, syncRetryDelay),
		appURL:        appURL,
		proPriceCents: proPriceCents,
		seenEvents:    expirable.NewLRU[string, struct{}](seenEventsSize, nil, seenEventsTTL),
		now:           time.Now,
	}
}

// Sync re-derives the user's subscription state from the provider,
// persists it, refreshes the cached subscription entry and invalidates
// the per-user cache tag. It is idempotent and safe to call after any
// payment redirect.
func (s *Service) Sync(ctx context.Context, userID, email string) (*SubscriptionInfo, error) {
	log := s.logger.WithField("user_id", userID)

	u, err := s.store.GetUser(ctx, userID)
	if apperrors.IsNotFound(err) {
		u, err = s.store.UpsertUser(ctx, userID, email)
	}
	if err != nil {
		return nil, err
	}

	customerID := u.StripeCustomerID
	if customerID == "" {
		// Self-healing against missed checkout webhooks: the provider
		// may already know this user by email.
		customer, err := s.provider.FindCustomerByEmail(ctx, u.Email)
		if err != nil {
			s.metrics.SubscriptionSyncTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("customer lookup failed: %w", err)
		}
		if customer != nil {
			customerID = customer.ID
			if err := s.store.SetStripeCustomerID(ctx, userID, customerID); err != nil {
				return nil, err
			}
			log.WithField("customer_id", customerID).Info("recovered stripe customer id by email")
		}
	}

	info := &SubscriptionInfo{Status: store.SubscriptionFree}
	if customerID != "" {
		var subs []Subscription
		attempt := 0
		err := retry.Do(ctx, s.retryPolicy, func(ctx context.Context) error {
			attempt++
			if attempt > 1 {
				s.metrics.StripeRetriesTotal.Inc()
			}
			var listErr error
			subs, listErr = s.provider.ListActiveSubscriptions(ctx, customerID)
			return listErr
		})
		if err != nil {
			s.metrics.SubscriptionSyncTotal.WithLabelValues("error").Inc()
			log.WithError(err).Error("subscription list failed after retries")
			return nil, fmt.Errorf("subscription sync failed: %w", err)
		}

		if len(subs) > 0 {
			end := time.Unix(subs[0].CurrentPeriodEnd, 0)
			info.Status = store.SubscriptionPro
			info.PeriodEnd = &end
		}
	}

	if err := s.persist(ctx, userID, info); err != nil {
		return nil, err
	}

	s.metrics.SubscriptionSyncTotal.WithLabelValues(string(info.Status)).Inc()
	log.WithField("status", info.Status).Info("subscription synced")
	return info, nil
}

// persist writes the reconciled state, drops every cached view derived
// from the user and re-caches the fresh subscription entry.
func (s *Service) persist(ctx context.Context, userID string, info *SubscriptionInfo) error {
	if err := s.store.UpdateSubscription(ctx, userID, info.Status, info.PeriodEnd); err != nil {
		return err
	}
	s.cache.InvalidateTag(ctx, cache.TagUser(userID))
	s.cache.InvalidateTag(ctx, cache.TagSubscription(userID))
	cache.SetJSON(ctx, s.cache, cache.KeyUserSubscription(userID), info, subscriptionTTL,
		cache.TagUser(userID), cache.TagSubscription(userID))
	return nil
}

// CreateCheckout creates a hosted checkout session for the PRO plan.
func (s *Service) CreateCheckout(ctx context.Context, userID, email string) (*CheckoutSession, error) {
	u, err := s.store.GetUser(ctx, userID)
	if apperrors.IsNotFound(err) {
		u, err = s.store.UpsertUser(ctx, userID, email)
	}
	if err != nil {
		return nil, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID:  u.StripeCustomerID,
		Email:       u.Email,
		UserID:      userID,
		PriceCents:  s.proPriceCents,
		ProductName: "Asque Pro",
		SuccessURL:  s.appURL + "/subscription?status=success",
		CancelURL:   s.appURL + "/subscription?status=cancelled",
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"session_id": session.ID,
	}).Info("checkout session created")
	return session, nil
}

// CreatePortal creates a billing-portal session. The user must already
// be a provider-side customer.
func (s *Service) CreatePortal(ctx context.Context, userID string) (*PortalSession, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.StripeCustomerID == "" {
		return nil, &apperrors.PaymentRequestError{Message: "no billing account exists for this user"}
	}
	return s.provider.CreatePortalSession(ctx, u.StripeCustomerID, s.appURL+"/subscription")
}

// HandleEvent applies a verified webhook event to local state.
// Redelivered events that already processed successfully are
// acknowledged without reprocessing. An event that fails is not
// recorded, so the provider's redelivery gets a fresh attempt.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	log := s.logger.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	if event.ID != "" {
		if _, seen := s.seenEvents.Get(event.ID); seen {
			s.metrics.WebhookEventsTotal.WithLabelValues(event.Type, "duplicate").Inc()
			log.Info("duplicate webhook event ignored")
			return nil
		}
	}

	var err error
	switch event.Type {
	case EventCheckoutCompleted:
		err = s.handleCheckoutCompleted(ctx, event)
	case EventInvoicePaid:
		err = s.handleInvoicePaid(ctx, event)
	case EventSubscriptionDeleted:
		err = s.handleSubscriptionDeleted(ctx, event)
	default:
		s.metrics.WebhookEventsTotal.WithLabelValues(event.Type, "ignored").Inc()
		log.Debug("unhandled webhook event type")
		if event.ID != "" {
			s.seenEvents.Add(event.ID, struct{}{})
		}
		return nil
	}

	if err != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
		log.WithError(err).Error("webhook event processing failed")
		return err
	}
	if event.ID != "" {
		s.seenEvents.Add(event.ID, struct{}{})
	}
	s.metrics.WebhookEventsTotal.WithLabelValues(event.Type, "ok").Inc()
	return nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *Event) error {
	var session CheckoutSessionObject
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return fmt.Errorf("failed to decode checkout session: %w", err)
	}

	userID := session.Metadata["userId"]
	if userID == "" {
		s.logger.WithField("event_id", event.ID).Warn("checkout session missing userId metadata")
		return nil
	}

	if session.Customer != "" {
		if err := s.store.SetStripeCustomerID(ctx, userID, session.Customer); err != nil {
			return err
		}
	}

	end := s.now().Add(checkoutPeriod)
	return s.persist(ctx, userID, &SubscriptionInfo{
		Status:    store.SubscriptionPro,
		PeriodEnd: &end,
	})
}

func (s *Service) handleInvoicePaid(ctx context.Context, event *Event) error {
	var invoice InvoiceObject
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return fmt.Errorf("failed to decode invoice: %w", err)
	}
	if invoice.Customer == "" {
		return nil
	}

	u, err := s.store.GetUserByStripeCustomer(ctx, invoice.Customer)
	if apperrors.IsNotFound(err) {
		// The checkout webhook may not have arrived yet; sync repairs
		// this later.
		s.logger.WithField("customer_id", invoice.Customer).Warn("invoice for unknown customer")
		return nil
	}
	if err != nil {
		return err
	}

	periodEnd := invoice.PeriodEnd
	if len(invoice.Lines.Data) > 0 && invoice.Lines.Data[0].Period.End > periodEnd {
		periodEnd = invoice.Lines.Data[0].Period.End
	}

	info := &SubscriptionInfo{Status: store.SubscriptionPro}
	if periodEnd > 0 {
		end := time.Unix(periodEnd, 0)
		info.PeriodEnd = &end
	} else {
		end := s.now().Add(checkoutPeriod)
		info.PeriodEnd = &end
	}
	return s.persist(ctx, u.ID, info)
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	var sub SubscriptionObject
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return fmt.Errorf("failed to decode subscription: %w", err)
	}
	if sub.Customer == "" {
		return nil
	}

	u, err := s.store.GetUserByStripeCustomer(ctx, sub.Customer)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.persist(ctx, u.ID, &SubscriptionInfo{Status: store.SubscriptionFree})
}
