package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the request pipeline
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Throttle metrics
	ThrottleDeniedTotal  *prometheus.CounterVec
	ThrottleClientsGauge prometheus.Gauge

	// Session metrics
	SessionsResolvedTotal *prometheus.CounterVec
	SessionsExtendedTotal prometheus.Counter

	// Access control metrics
	AccessDeniedTotal       *prometheus.CounterVec
	PolicyCacheRefreshTotal *prometheus.CounterVec
	PolicyCacheEntriesGauge prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tadbeer_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tadbeer_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ThrottleDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tadbeer_throttle_denied_total",
				Help: "Requests rejected by the abuse throttle",
			},
			[]string{"backend"},
		),
		ThrottleClientsGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tadbeer_throttle_tracked_clients",
				Help: "Client windows currently tracked by the in-memory throttle",
			},
		),
		SessionsResolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tadbeer_sessions_resolved_total",
				Help: "Session resolution outcomes per request",
			},
			[]string{"outcome"},
		),
		SessionsExtendedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tadbeer_sessions_extended_total",
				Help: "Sessions whose sliding expiry was extended",
			},
		),
		AccessDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tadbeer_access_denied_total",
				Help: "Requests denied by the access controller",
			},
			[]string{"reason"},
		),
		PolicyCacheRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tadbeer_policy_cache_refresh_total",
				Help: "Protected-route policy cache refresh attempts",
			},
			[]string{"status"},
		),
		PolicyCacheEntriesGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tadbeer_policy_cache_entries",
				Help: "Policies held in the current cache snapshot",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tadbeer_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tadbeer_db_connections_idle",
				Help: "Idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ThrottleDeniedTotal,
		m.ThrottleClientsGauge,
		m.SessionsResolvedTotal,
		m.SessionsExtendedTotal,
		m.AccessDeniedTotal,
		m.PolicyCacheRefreshTotal,
		m.PolicyCacheEntriesGauge,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records metrics for a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Session resolution outcomes
const (
	SessionOutcomeAnonymous = "anonymous"
	SessionOutcomeValid     = "valid"
	SessionOutcomeExpired   = "expired"
	SessionOutcomeError     = "error"
)

// Access denial reasons
const (
	DenyReasonUnauthenticated = "unauthenticated"
	DenyReasonUnverifiedEmail = "unverified_email"
	DenyReasonRole            = "role"
)

// Policy cache refresh statuses
const (
	RefreshStatusOK    = "ok"
	RefreshStatusError = "error"
	RefreshStatusStale = "stale_served"
)
