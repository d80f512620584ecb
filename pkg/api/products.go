package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/asque/asque/pkg/apperrors"
	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/httputil"
	"github.com/asque/asque/pkg/middleware"
	"github.com/asque/asque/pkg/store"
)

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	var products []*store.Product
	err := s.loader.GetOrLoad(r.Context(), cache.KeyProductList(auth.UserID), &products, listTTL,
		[]string{cache.TagUser(auth.UserID), cache.TagProducts(auth.UserID)},
		func(ctx context.Context) (interface{}, error) {
			return s.store.ListProducts(ctx, auth.UserID)
		})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	if search := httputil.QueryString(r, "search", ""); search != "" {
		filtered := products[:0]
		for _, p := range products {
			if containsFold(p.Name, search) || containsFold(p.Description, search) {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}
	httputil.WriteSuccess(w, products)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	var req ProductRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}
	if err := req.Validate(); err != nil {
		s.handleError(w, r, err)
		return
	}

	product := &store.Product{
		ID:          uuid.NewString(),
		UserID:      auth.UserID,
		Name:        req.Name,
		Description: req.Description,
		UnitPrice:   req.UnitPrice,
		Unit:        req.Unit,
	}
	if err := s.store.CreateProduct(r.Context(), product); err != nil {
		s.handleError(w, r, err)
		return
	}

	s.cache.InvalidateTag(r.Context(), cache.TagProducts(auth.UserID))
	httputil.WriteCreated(w, product)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	id, err := httputil.PathString(r, "id")
	if err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}

	product, err := s.store.GetProduct(r.Context(), auth.UserID, id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, product)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	id, err := httputil.PathString(r, "id")
	if err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}

	var req ProductRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}
	if err := req.Validate(); err != nil {
		s.handleError(w, r, err)
		return
	}

	product := &store.Product{
		ID:          id,
		UserID:      auth.UserID,
		Name:        req.Name,
		Description: req.Description,
		UnitPrice:   req.UnitPrice,
		Unit:        req.Unit,
	}
	if err := s.store.UpdateProduct(r.Context(), product); err != nil {
		s.handleError(w, r, err)
		return
	}

	s.cache.InvalidateTag(r.Context(), cache.TagProducts(auth.UserID))
	httputil.WriteSuccess(w, product)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuth(r.Context())

	id, err := httputil.PathString(r, "id")
	if err != nil {
		s.handleError(w, r, &apperrors.MalformedError{Err: err})
		return
	}

	if err := s.store.DeleteProduct(r.Context(), auth.UserID, id); err != nil {
		s.handleError(w, r, err)
		return
	}

	s.cache.InvalidateTag(r.Context(), cache.TagProducts(auth.UserID))
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
