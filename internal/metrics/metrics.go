package metrics

import (
	"sync"
	"time"

	"github.com/go-connectly/connectly/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ensure Metrics implements Recorder interface at compile time
var _ core.Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Authorization flow metrics
	AuthorizationURLsTotal *prometheus.CounterVec
	CallbacksTotal         *prometheus.CounterVec
	CodeExchangesTotal     *prometheus.CounterVec
	CodeExchangeDuration   *prometheus.HistogramVec
	ProfileFetchesTotal    *prometheus.CounterVec
	StateReplaysTotal      *prometheus.CounterVec

	// Token lifecycle metrics
	TokenRefreshesTotal  *prometheus.CounterVec
	TokenRefreshDuration *prometheus.HistogramVec
	RevokesTotal         *prometheus.CounterVec

	// Security metrics
	RateLimitExceededTotal *prometheus.CounterVec

	// Connection metrics
	ConnectionsActive prometheus.Gauge

	// Database query metrics
	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag
// If enabled=true, returns Prometheus-based Metrics
// If enabled=false, returns NoopMetrics (zero overhead)
// Uses sync.Once to ensure Prometheus metrics are only registered once
func Init(enabled bool) core.Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// initMetrics creates and registers all Prometheus metrics
func initMetrics() *Metrics {
	return &Metrics{
		AuthorizationURLsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorization_urls_total",
				Help: "Total number of authorization URLs issued",
			},
			[]string{"provider", "result"}, // success, error
		),
		CallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_callbacks_total",
				Help: "Total number of provider callbacks by outcome",
			},
			[]string{"provider", "result"}, // connected or a rejection reason
		),
		CodeExchangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_code_exchanges_total",
				Help: "Total number of authorization code exchanges",
			},
			[]string{"provider", "result"},
		),
		CodeExchangeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oauth_code_exchange_duration_seconds",
				Help:    "Time taken to exchange an authorization code",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		ProfileFetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_profile_fetches_total",
				Help: "Total number of provider profile fetches",
			},
			[]string{"provider", "result"},
		),
		StateReplaysTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_state_replays_total",
				Help: "Total number of callbacks presenting an already-consumed state",
			},
			[]string{"provider"},
		),
		TokenRefreshesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_token_refreshes_total",
				Help: "Total number of refresh token exchanges",
			},
			[]string{"provider", "result"},
		),
		TokenRefreshDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oauth_token_refresh_duration_seconds",
				Help:    "Time taken to exchange a refresh token",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		RevokesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_revokes_total",
				Help: "Total number of provider-side revoke attempts",
			},
			[]string{"provider", "result"},
		),
		RateLimitExceededTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_rate_limit_exceeded_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
		ConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "oauth_connections_active",
				Help: "Current number of active connections",
			},
		),
		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors",
			},
			[]string{"operation"},
		),
	}
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordAuthorizationURLIssued records an authorization URL build attempt
func (m *Metrics) RecordAuthorizationURLIssued(provider string, success bool) {
	m.AuthorizationURLsTotal.WithLabelValues(provider, resultLabel(success)).Inc()
}

// RecordCallback records a callback outcome (connected or rejection reason)
func (m *Metrics) RecordCallback(provider, result string) {
	m.CallbacksTotal.WithLabelValues(provider, result).Inc()
}

// RecordCodeExchange records an authorization code exchange
func (m *Metrics) RecordCodeExchange(provider string, success bool, duration time.Duration) {
	m.CodeExchangesTotal.WithLabelValues(provider, resultLabel(success)).Inc()
	m.CodeExchangeDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordProfileFetch records a profile fetch attempt
func (m *Metrics) RecordProfileFetch(provider string, success bool) {
	m.ProfileFetchesTotal.WithLabelValues(provider, resultLabel(success)).Inc()
}

// RecordStateReplayed records a callback presenting a consumed state
func (m *Metrics) RecordStateReplayed(provider string) {
	m.StateReplaysTotal.WithLabelValues(provider).Inc()
}

// RecordTokenRefresh records a refresh token exchange
func (m *Metrics) RecordTokenRefresh(provider string, success bool, duration time.Duration) {
	m.TokenRefreshesTotal.WithLabelValues(provider, resultLabel(success)).Inc()
	m.TokenRefreshDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRevoke records a provider-side revoke attempt
func (m *Metrics) RecordRevoke(provider string, success bool) {
	m.RevokesTotal.WithLabelValues(provider, resultLabel(success)).Inc()
}

// RecordRateLimitExceeded records a rate limited request
func (m *Metrics) RecordRateLimitExceeded(route string) {
	m.RateLimitExceededTotal.WithLabelValues(route).Inc()
}

// SetActiveConnectionsCount sets the active connections gauge
func (m *Metrics) SetActiveConnectionsCount(count int) {
	m.ConnectionsActive.Set(float64(count))
}

// RecordDatabaseQueryError records a database query error
func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}
