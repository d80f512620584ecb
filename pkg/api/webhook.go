package api

import (
	"io"
	"net/http"

	"github.com/asque/asque/pkg/billing"
	"github.com/asque/asque/pkg/contextkeys"
	"github.com/asque/asque/pkg/httputil"
	"github.com/asque/asque/pkg/observability"
)

// maxWebhookBody bounds the raw payload read.
const maxWebhookBody = 1 << 20

// stripeWebhook verifies and applies a provider webhook. Verification
// failure answers 400 with no state mutation; processing failure
// answers 500 so the provider redelivers.
func (s *Server) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := contextkeys.GetRequestID(ctx)
	log := observability.GetLogger(ctx)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteErrorBody(w, http.StatusBadRequest, "unreadable payload", nil, requestID)
		return
	}

	event, err := billing.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), s.cfg.Stripe.WebhookSecret)
	if err != nil {
		log.WithError(err).Warn("webhook signature verification failed")
		httputil.WriteErrorBody(w, http.StatusBadRequest, "invalid signature", nil, requestID)
		return
	}

	if err := s.billing.HandleEvent(ctx, event); err != nil {
		httputil.WriteErrorBody(w, http.StatusInternalServerError, "webhook processing failed", nil, requestID)
		return
	}

	httputil.WriteSuccess(w, map[string]bool{"received": true})
}
