package core

import "time"

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Authorization flow
	RecordAuthorizationURLIssued(provider string, success bool)
	RecordCallback(provider, result string)
	RecordCodeExchange(provider string, success bool, duration time.Duration)
	RecordProfileFetch(provider string, success bool)
	RecordStateReplayed(provider string)

	// Token lifecycle
	RecordTokenRefresh(provider string, success bool, duration time.Duration)
	RecordRevoke(provider string, success bool)

	// Security
	RecordRateLimitExceeded(route string)

	// Gauge setters (for periodic updates)
	SetActiveConnectionsCount(count int)

	// Database operations
	RecordDatabaseQueryError(operation string)
}
