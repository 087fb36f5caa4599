package metrics

import (
	"time"

	"github.com/go-connectly/connectly/internal/core"
)

// NoopMetrics is a no-operation implementation of Recorder
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ core.Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() core.Recorder {
	return &NoopMetrics{}
}

// Authorization flow - noop implementations
func (n *NoopMetrics) RecordAuthorizationURLIssued(provider string, success bool)        {}
func (n *NoopMetrics) RecordCallback(provider, result string)                            {}
func (n *NoopMetrics) RecordCodeExchange(provider string, success bool, d time.Duration) {}
func (n *NoopMetrics) RecordProfileFetch(provider string, success bool)                  {}
func (n *NoopMetrics) RecordStateReplayed(provider string)                               {}

// Token lifecycle - noop implementations
func (n *NoopMetrics) RecordTokenRefresh(provider string, success bool, d time.Duration) {}
func (n *NoopMetrics) RecordRevoke(provider string, success bool)                        {}

// Security - noop implementations
func (n *NoopMetrics) RecordRateLimitExceeded(route string) {}

// Gauge setters - noop implementations
func (n *NoopMetrics) SetActiveConnectionsCount(count int) {}

// Database operations - noop implementations
func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}
