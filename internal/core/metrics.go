package core

import "time"

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Authorization Flow
	RecordAuthorizeRequest(result string)
	RecordConsentDecision(approved bool)
	RecordCodeIssued(success bool)

	// Token Operations
	RecordTokenIssued(tokenType, grantType string, generationTime time.Duration)
	RecordTokenRevoked(tokenType string)
	RecordTokenRefresh(success bool)
	RecordIntrospection(result string, duration time.Duration)

	// Client & Resource Server Management
	RecordClientRegistered(success bool)
	RecordClientAuthAttempt(method string, success bool)
	RecordDelegationTokenIssued(success bool)
	RecordDelegationTokenValidation(result string)

	// Gauge Setters (for periodic updates)
	SetActiveTokensCount(tokenType string, count int)
	SetRegisteredClientsCount(count int)

	// Database Operations
	RecordDatabaseQueryError(operation string)
	RecordExpirySweep(codesDeleted, tokensDeleted int64, duration time.Duration)
}

// MetricsStore defines the DB operations needed for periodic gauge updates.
type MetricsStore interface {
	CountActiveTokensByCategory(category string) (int64, error)
	CountClients() (int64, error)
}
