package api

import (
	"net/http"

	"github.com/asque/asque/pkg/billing"
	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/httputil"
	"github.com/asque/asque/pkg/middleware"
	"github.com/asque/asque/pkg/observability"
	"github.com/asque/asque/pkg/store"
)

// initUser ensures a user record exists for the authenticated identity.
// Clients call it once after sign-in.
func (s *Server) initUser(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	user, err := s.store.UpsertUser(r.Context(), auth.UserID, auth.Email)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// deleteUser soft-deletes the account; the daily purge job removes the
// row for good after the retention window.
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	if err := s.store.SoftDeleteUser(r.Context(), auth.UserID); err != nil {
		s.handleError(w, r, err)
		return
	}

	for _, tag := range []string{
		cache.TagUser(auth.UserID),
		cache.TagSubscription(auth.UserID),
		cache.TagQuotes(auth.UserID),
		cache.TagProducts(auth.UserID),
		cache.TagClients(auth.UserID),
	} {
		s.cache.InvalidateTag(r.Context(), tag)
	}

	observability.GetLogger(r.Context()).WithField("user_id", auth.UserID).Info("account soft-deleted")
	httputil.WriteSuccess(w, map[string]string{"status": "deleted"})
}

// getSubscription serves the cached subscription view. A failed read
// degrades to FREE instead of failing the status display.
func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	info, err := s.limits.GetUserSubscription(r.Context(), auth.UserID)
	if err != nil {
		observability.GetLogger(r.Context()).WithError(err).Warn("subscription read failed, serving FREE")
		info = &billing.SubscriptionInfo{Status: store.SubscriptionFree}
	}
	httputil.WriteSuccess(w, info)
}

// syncSubscription reconciles against the payment provider on demand,
// typically right after a checkout redirect.
func (s *Server) syncSubscription(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	info, err := s.billing.Sync(r.Context(), auth.UserID, auth.Email)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, info)
}

func (s *Server) createCheckout(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	session, err := s.billing.CreateCheckout(r.Context(), auth.UserID, auth.Email)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"url": session.URL})
}

func (s *Server) createPortal(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	session, err := s.billing.CreatePortal(r.Context(), auth.UserID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"url": session.URL})
}
