package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/asque/asque/pkg/apperrors"
	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/httputil"
	"github.com/asque/asque/pkg/middleware"
	"github.com/asque/asque/pkg/ratelimit"
	"github.com/asque/asque/pkg/store"
)

func (s *Server) listQuotes(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	var quotes []*store.Quote
	err := s.loader.GetOrLoad(r.Context(), cache.KeyQuoteList(auth.UserID), &quotes, listTTL,
		[]string{cache.TagUser(auth.UserID), cache.TagQuotes(auth.UserID)},
		func(ctx context.Context) (interface{}, error) {
			return s.store.ListQuotes(ctx, auth.UserID)
		})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, quotes)
}

// createQuote runs the full pipeline: tier-dependent rate limit, quota
// gate, pricing, persistence, usage increment, cache invalidation. The
// quota check precedes any write so a rejected creation touches nothing.
func (s *Server) createQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auth := middleware.GetAuth(ctx)

	sub, err := s.limits.GetUserSubscription(ctx, auth.UserID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	class := ratelimit.ClassQuoteCreateFree
	if sub.Status == store.SubscriptionPro {
		class = ratelimit.ClassQuoteCreatePro
	}
	if !middleware.CheckRate(ctx, w, s.limiter, s.metrics, class) {
		return
	}

	var req QuoteRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}
	if err := req.Validate(); err != nil {
		s.handleError(w, r, err)
		return
	}

	if err := s.limits.CheckQuoteLimit(ctx, auth.UserID); err != nil {
		s.handleError(w, r, err)
		return
	}

	settings, err := s.store.GetSettings(ctx, auth.UserID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	taxRate := settings.TaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}

	quote, err := s.buildQuote(ctx, auth.UserID, &req, taxRate, settings.QuoteValidDays)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	if err := s.store.CreateQuote(ctx, quote); err != nil {
		s.handleError(w, r, err)
		return
	}

	// The counter moves only after the quote persisted, so failed
	// creations never consume quota.
	if err := s.limits.IncrementQuoteCount(ctx, auth.UserID, auth.Email); err != nil {
		s.handleError(w, r, err)
		return
	}

	s.cache.InvalidateTag(ctx, cache.TagQuotes(auth.UserID))
	httputil.WriteCreated(w, quote)
}

// buildQuote prices the request and assigns the next sequential number
// for the current month, formatted Q-YYYYMM-XXXX.
func (s *Server) buildQuote(ctx context.Context, userID string, req *QuoteRequest, taxRate float64, validDays int) (*store.Quote, error) {
	now := time.Now().UTC()

	count, err := s.store.CountQuotesInMonth(ctx, userID, now.Year(), now.Month())
	if err != nil {
		return nil, err
	}
	number := fmt.Sprintf("Q-%s-%04d", now.Format("200601"), count+1)

	quote := &store.Quote{
		ID:       uuid.NewString(),
		UserID:   userID,
		ClientID: req.ClientID,
		Number:   number,
		Status:   store.QuoteDraft,
		TaxRate:  taxRate,
		Notes:    req.Notes,
	}

	for _, item := range req.Items {
		lineTotal := int64(item.Quantity) * item.UnitPrice
		quote.Items = append(quote.Items, store.QuoteItem{
			ID:          uuid.NewString(),
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       lineTotal,
		})
		quote.Subtotal += lineTotal
	}

	quote.TaxAmount = int64(math.Round(float64(quote.Subtotal) * taxRate / 100))
	quote.Total = quote.Subtotal + quote.TaxAmount

	if validDays > 0 {
		validUntil := now.AddDate(0, 0, validDays)
		quote.ValidUntil = &validUntil
	}
	return quote, nil
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	id, err := httputil.PathString(r, "id")
	if err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}

	// The user id is part of the key so one tenant can never serve
	// another tenant's cached quote.
	var quote *store.Quote
	err = s.loader.GetOrLoad(r.Context(), cache.KeyQuote(auth.UserID+":"+id), &quote, listTTL,
		[]string{cache.TagUser(auth.UserID), cache.TagQuotes(auth.UserID)},
		func(ctx context.Context) (interface{}, error) {
			return s.store.GetQuote(ctx, auth.UserID, id)
		})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, quote)
}

func (s *Server) updateQuoteStatus(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	id, err := httputil.PathString(r, "id")
	if err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}

	var req QuoteStatusRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}
	if err := req.Validate(); err != nil {
		s.handleError(w, r, err)
		return
	}

	if err := s.store.UpdateQuoteStatus(r.Context(), auth.UserID, id, req.Status); err != nil {
		s.handleError(w, r, err)
		return
	}

	s.cache.InvalidateTag(r.Context(), cache.TagQuotes(auth.UserID))
	httputil.WriteSuccess(w, map[string]interface{}{"id": id, "status": req.Status})
}

func (s *Server) deleteQuote(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	id, err := httputil.PathString(r, "id")
	if err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}

	if err := s.store.DeleteQuote(r.Context(), auth.UserID, id); err != nil {
		s.handleError(w, r, err)
		return
	}

	s.cache.InvalidateTag(r.Context(), cache.TagQuotes(auth.UserID))
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
