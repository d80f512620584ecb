package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheEvictionsTotal *prometheus.CounterVec

	// Rate limit metrics
	RateLimitRejectionsTotal *prometheus.CounterVec

	// Quota metrics
	QuotaRejectionsTotal prometheus.Counter

	// Billing metrics
	WebhookEventsTotal    *prometheus.CounterVec
	SubscriptionSyncTotal *prometheus.CounterVec
	StripeRetriesTotal    prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asque_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "asque_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asque_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"store"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asque_cache_misses_total",
				Help: "Total number of cache misses (including lazy expiries)",
			},
			[]string{"store"},
		),
		CacheEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asque_cache_evictions_total",
				Help: "Total number of cache entries removed by sweep or tag invalidation",
			},
			[]string{"store", "reason"},
		),
		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asque_ratelimit_rejections_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"class"},
		),
		QuotaRejectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "asque_quota_rejections_total",
				Help: "Total number of quote creations rejected by the free-tier quota",
			},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asque_webhook_events_total",
				Help: "Total number of payment provider webhook events processed",
			},
			[]string{"type", "result"},
		),
		SubscriptionSyncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asque_subscription_sync_total",
				Help: "Total number of subscription reconciliations",
			},
			[]string{"result"},
		),
		StripeRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "asque_stripe_retries_total",
				Help: "Total number of retried payment provider calls",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheEvictionsTotal,
		m.RateLimitRejectionsTotal,
		m.QuotaRejectionsTotal,
		m.WebhookEventsTotal,
		m.SubscriptionSyncTotal,
		m.StripeRetriesTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
