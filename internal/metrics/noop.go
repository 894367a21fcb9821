package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

// Authorization Flow - noop implementations
func (n *NoopMetrics) RecordAuthorizeRequest(result string) {}
func (n *NoopMetrics) RecordConsentDecision(approved bool)  {}
func (n *NoopMetrics) RecordCodeIssued(success bool)        {}

// Token Operations - noop implementations
func (n *NoopMetrics) RecordTokenIssued(tokenType, grantType string, generationTime time.Duration) {
}
func (n *NoopMetrics) RecordTokenRevoked(tokenType string)                        {}
func (n *NoopMetrics) RecordTokenRefresh(success bool)                            {}
func (n *NoopMetrics) RecordIntrospection(result string, duration time.Duration)  {}

// Client & Resource Server Management - noop implementations
func (n *NoopMetrics) RecordClientRegistered(success bool)                 {}
func (n *NoopMetrics) RecordClientAuthAttempt(method string, success bool) {}
func (n *NoopMetrics) RecordDelegationTokenIssued(success bool)            {}
func (n *NoopMetrics) RecordDelegationTokenValidation(result string)       {}

// Gauge Setters - noop implementations
func (n *NoopMetrics) SetActiveTokensCount(tokenType string, count int) {}
func (n *NoopMetrics) SetRegisteredClientsCount(count int)              {}

// Database Operations - noop implementations
func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}
func (n *NoopMetrics) RecordExpirySweep(codesDeleted, tokensDeleted int64, duration time.Duration) {
}
