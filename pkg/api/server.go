package api

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/asque/asque/pkg/billing"
	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/config"
	"github.com/asque/asque/pkg/limits"
	"github.com/asque/asque/pkg/middleware"
	"github.com/asque/asque/pkg/observability"
	"github.com/asque/asque/pkg/ratelimit"
	"github.com/asque/asque/pkg/store"
)

// Server is the HTTP API server.
type Server struct {
	router   *mux.Router
	handler  http.Handler
	store    store.Store
	cache    cache.Store
	loader   *cache.Loader
	limiter  ratelimit.Limiter
	limits   *limits.Service
	billing  *billing.Service
	verifier middleware.TokenVerifier
	logger   *observability.Logger
	metrics  *observability.Metrics
	cfg      *config.Config

	httpServer *http.Server
}

// NewServer wires the request pipeline and registers all routes.
func NewServer(cfg *config.Config, st store.Store, cacheStore cache.Store, limiter ratelimit.Limiter, limitsSvc *limits.Service, billingSvc *billing.Service, verifier middleware.TokenVerifier, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		store:    st,
		cache:    cacheStore,
		loader:   cache.NewLoader(cacheStore),
		limiter:  limiter,
		limits:   limitsSvc,
		billing:  billingSvc,
		verifier: verifier,
		logger:   logger.WithField("component", "api"),
		metrics:  metrics,
		cfg:      cfg,
	}
	s.setupRoutes()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{
			middleware.RequestIDHeader,
			middleware.HeaderRateLimitRemaining,
			middleware.HeaderRateLimitReset,
		},
	})
	s.handler = corsHandler.Handler(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logging(s.logger, s.metrics))

	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")
	if s.cfg.Observability.MetricsEnabled {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	// Webhooks authenticate by signature, not bearer token.
	s.router.HandleFunc("/webhooks/stripe", s.stripeWebhook).Methods("POST")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(s.verifier))

	api.HandleFunc("/users/me", s.rateLimited(ratelimit.ClassAuth, s.initUser)).Methods("POST")
	api.HandleFunc("/users/me", s.rateLimited(ratelimit.ClassAuth, s.deleteUser)).Methods("DELETE")

	api.HandleFunc("/clients", s.rateLimited(ratelimit.ClassDefault, s.listClients)).Methods("GET")
	api.HandleFunc("/clients", s.rateLimited(ratelimit.ClassDefault, s.createClient)).Methods("POST")
	api.HandleFunc("/clients/{id}", s.rateLimited(ratelimit.ClassDefault, s.getClient)).Methods("GET")
	api.HandleFunc("/clients/{id}", s.rateLimited(ratelimit.ClassDefault, s.updateClient)).Methods("PUT")
	api.HandleFunc("/clients/{id}", s.rateLimited(ratelimit.ClassDefault, s.deleteClient)).Methods("DELETE")

	api.HandleFunc("/products", s.rateLimited(ratelimit.ClassDefault, s.listProducts)).Methods("GET")
	api.HandleFunc("/products", s.rateLimited(ratelimit.ClassDefault, s.createProduct)).Methods("POST")
	api.HandleFunc("/products/{id}", s.rateLimited(ratelimit.ClassDefault, s.getProduct)).Methods("GET")
	api.HandleFunc("/products/{id}", s.rateLimited(ratelimit.ClassDefault, s.updateProduct)).Methods("PUT")
	api.HandleFunc("/products/{id}", s.rateLimited(ratelimit.ClassDefault, s.deleteProduct)).Methods("DELETE")

	api.HandleFunc("/quotes", s.rateLimited(ratelimit.ClassQuoteList, s.listQuotes)).Methods("GET")
	// Quote creation selects its limit class by subscription tier inside
	// the handler.
	api.HandleFunc("/quotes", s.createQuote).Methods("POST")
	api.HandleFunc("/quotes/{id}", s.rateLimited(ratelimit.ClassDefault, s.getQuote)).Methods("GET")
	api.HandleFunc("/quotes/{id}", s.rateLimited(ratelimit.ClassDefault, s.deleteQuote)).Methods("DELETE")
	api.HandleFunc("/quotes/{id}/status", s.rateLimited(ratelimit.ClassDefault, s.updateQuoteStatus)).Methods("PATCH")

	api.HandleFunc("/settings", s.rateLimited(ratelimit.ClassDefault, s.getSettings)).Methods("GET")
	api.HandleFunc("/settings", s.rateLimited(ratelimit.ClassDefault, s.updateSettings)).Methods("PUT")

	api.HandleFunc("/subscription", s.rateLimited(ratelimit.ClassSubscription, s.getSubscription)).Methods("GET")
	api.HandleFunc("/subscription/sync", s.rateLimited(ratelimit.ClassSubscription, s.syncSubscription)).Methods("POST")
	api.HandleFunc("/subscription/checkout", s.rateLimited(ratelimit.ClassSubscription, s.createCheckout)).Methods("POST")
	api.HandleFunc("/subscription/portal", s.rateLimited(ratelimit.ClassSubscription, s.createPortal)).Methods("POST")
}

// rateLimited wraps a handler with a fixed rate limit class.
func (s *Server) rateLimited(class ratelimit.Class, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !middleware.CheckRate(r.Context(), w, s.limiter, s.metrics, class) {
			return
		}
		next(w, r)
	}
}

// handleError delegates to the classifier with the configured mode.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	HandleError(w, r, err, s.cfg.IsProduction())
}

// Handler returns the full handler chain including CORS. Used by tests
// and by Start.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving and blocks until the listener fails or Shutdown
// runs.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.WithField("addr", addr).Info("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
