package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asque/asque/pkg/apperrors"
	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/httputil"
	"github.com/asque/asque/pkg/middleware"
	"github.com/asque/asque/pkg/store"
)

// listTTL bounds staleness of cached list views.
const listTTL = 2 * time.Minute

func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	var clients []*store.Client
	err := s.loader.GetOrLoad(r.Context(), cache.KeyClientList(auth.UserID), &clients, listTTL,
		[]string{cache.TagUser(auth.UserID), cache.TagClients(auth.UserID)},
		func(ctx context.Context) (interface{}, error) {
			return s.store.ListClients(ctx, auth.UserID)
		})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	// Filtering happens after the cache so one entry serves all searches.
	if search := httputil.QueryString(r, "search", ""); search != "" {
		filtered := clients[:0]
		for _, c := range clients {
			if containsFold(c.Name, search) || containsFold(c.Company, search) || containsFold(c.Email, search) {
				filtered = append(filtered, c)
			}
		}
		clients = filtered
	}
	httputil.WriteSuccess(w, clients)
}

// containsFold reports whether s contains substr case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func (s *Server) createClient(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	var req ClientRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}
	if err := req.Validate(); err != nil {
		s.handleError(w, r, err)
		return
	}

	client := &store.Client{
		ID:      uuid.NewString(),
		UserID:  auth.UserID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Address: req.Address,
	}
	if err := s.store.CreateClient(r.Context(), client); err != nil {
		s.handleError(w, r, err)
		return
	}

	s.cache.InvalidateTag(r.Context(), cache.TagClients(auth.UserID))
	httputil.WriteCreated(w, client)
}

func (s *Server) getClient(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	id, err := httputil.PathString(r, "id")
	if err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}

	client, err := s.store.GetClient(r.Context(), auth.UserID, id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, client)
}

func (s *Server) updateClient(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	id, err := httputil.PathString(r, "id")
	if err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}

	var req ClientRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}
	if err := req.Validate(); err != nil {
		s.handleError(w, r, err)
		return
	}

	client := &store.Client{
		ID:      id,
		UserID:  auth.UserID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Address: req.Address,
	}
	if err := s.store.UpdateClient(r.Context(), client); err != nil {
		s.handleError(w, r, err)
		return
	}

	s.cache.InvalidateTag(r.Context(), cache.TagClients(auth.UserID))
	httputil.WriteSuccess(w, client)
}

func (s *Server) deleteClient(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	id, err := httputil.PathString(r, "id")
	if err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}

	if err := s.store.DeleteClient(r.Context(), auth.UserID, id); err != nil {
		s.handleError(w, r, err)
		return
	}

	s.cache.InvalidateTag(r.Context(), cache.TagClients(auth.UserID))
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
