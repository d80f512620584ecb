package api

import (
	"context"
	"net/http"
	"time"

	"github.com/asque/asque/pkg/apperrors"
	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/httputil"
	"github.com/asque/asque/pkg/middleware"
	"github.com/asque/asque/pkg/store"
)

// settingsTTL is longer than list TTLs; settings change rarely.
const settingsTTL = 10 * time.Minute

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	var settings *store.Settings
	err := s.loader.GetOrLoad(r.Context(), cache.KeyUserSettings(auth.UserID), &settings, settingsTTL,
		[]string{cache.TagUser(auth.UserID)},
		func(ctx context.Context) (interface{}, error) {
			// Creates a default row on first read.
			return s.store.GetSettings(ctx, auth.UserID)
		})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, settings)
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	var req SettingsRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}
	if err := req.Validate(); err != nil {
		s.handleError(w, r, err)
		return
	}

	settings := &store.Settings{
		UserID:         auth.UserID,
		CompanyName:    req.CompanyName,
		CompanyEmail:   req.CompanyEmail,
		CompanyPhone:   req.CompanyPhone,
		CompanyAddress: req.CompanyAddress,
		TaxRate:        req.TaxRate,
		Currency:       req.Currency,
		QuoteValidDays: req.QuoteValidDays,
	}
	if settings.Currency == "" {
		settings.Currency = store.DefaultCurrency
	}
	if settings.QuoteValidDays == 0 {
		settings.QuoteValidDays = store.DefaultQuoteValidDays
	}

	if err := s.store.UpsertSettings(r.Context(), settings); err != nil {
		s.handleError(w, r, err)
		return
	}

	s.cache.InvalidateTag(r.Context(), cache.TagUser(auth.UserID))
	httputil.WriteSuccess(w, settings)
}
