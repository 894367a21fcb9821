package metrics

import (
	"sync"
	"time"

	"github.com/go-authgate/oauthd/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics contract the services depend on.
type Recorder = core.Recorder

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Authorization Flow Metrics
	AuthorizeRequestsTotal *prometheus.CounterVec
	ConsentDecisionsTotal  *prometheus.CounterVec
	CodesIssuedTotal       *prometheus.CounterVec

	// Token Metrics
	TokensIssuedTotal       *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokensRefreshedTotal    *prometheus.CounterVec
	IntrospectionTotal      *prometheus.CounterVec
	TokensActive            *prometheus.GaugeVec
	TokenGenerationDuration *prometheus.HistogramVec
	IntrospectionDuration   prometheus.Histogram

	// Client & Resource Server Metrics
	ClientsRegisteredTotal          *prometheus.CounterVec
	ClientsRegistered               prometheus.Gauge
	ClientAuthAttemptsTotal         *prometheus.CounterVec
	DelegationTokensIssuedTotal     *prometheus.CounterVec
	DelegationTokenValidationsTotal *prometheus.CounterVec

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Maintenance Metrics
	DatabaseQueryErrorsTotal *prometheus.CounterVec
	ExpirySweepDeletedTotal  *prometheus.CounterVec
	ExpirySweepDuration      prometheus.Histogram
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag
// If enabled=true, returns Prometheus-based Metrics
// If enabled=false, returns NoopMetrics (zero overhead)
// Uses sync.Once to ensure Prometheus metrics are only registered once
func Init(enabled bool) Recorder {
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
		AuthorizeRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorize_requests_total",
				Help: "Total number of authorization requests",
			},
			[]string{"result"}, // valid, invalid_client, invalid_redirect, unsupported_response_type, invalid_scope
		),
		ConsentDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_consent_decisions_total",
				Help: "Total number of consent decisions",
			},
			[]string{"decision"}, // approved, denied
		),
		CodesIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_codes_issued_total",
				Help: "Total number of authorization codes issued",
			},
			[]string{"result"}, // success, error
		),

		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{"type", "grant"},
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_revoked_total",
				Help: "Total number of tokens revoked",
			},
			[]string{"type"},
		),
		TokensRefreshedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_refreshed_total",
				Help: "Total number of refresh-token exchanges",
			},
			[]string{"result"}, // success, error
		),
		IntrospectionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_introspection_total",
				Help: "Total number of introspection requests",
			},
			[]string{"result"}, // active, inactive
		),
		TokensActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oauth_tokens_active",
				Help: "Current number of active tokens",
			},
			[]string{"type"},
		),
		TokenGenerationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oauth_token_generation_duration_seconds",
				Help:    "Time taken to mint a token",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"grant"},
		),
		IntrospectionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oauth_introspection_duration_seconds",
				Help:    "Time taken to resolve an introspection request",
				Buckets: prometheus.DefBuckets,
			},
		),

		ClientsRegisteredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_clients_registered_total",
				Help: "Total number of dynamic client registrations",
			},
			[]string{"result"}, // success, error
		),
		ClientsRegistered: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "oauth_clients_registered",
				Help: "Current number of registered clients",
			},
		),
		ClientAuthAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_client_auth_attempts_total",
				Help: "Total number of client authentication attempts",
			},
			[]string{"method", "result"}, // basic/params x success/failure
		),
		DelegationTokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_delegation_tokens_issued_total",
				Help: "Total number of delegated user tokens issued",
			},
			[]string{"result"},
		),
		DelegationTokenValidationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_delegation_token_validations_total",
				Help: "Total number of delegated user token validations",
			},
			[]string{"result"}, // valid, invalid
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of in-flight HTTP requests",
			},
		),

		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors",
			},
			[]string{"operation"},
		),
		ExpirySweepDeletedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_expiry_sweep_deleted_total",
				Help: "Total number of rows removed by the expiry sweep",
			},
			[]string{"kind"}, // code, token
		),
		ExpirySweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oauth_expiry_sweep_duration_seconds",
				Help:    "Time taken by one expiry sweep pass",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordAuthorizeRequest records the outcome of authorization request validation
func (m *Metrics) RecordAuthorizeRequest(result string) {
	m.AuthorizeRequestsTotal.WithLabelValues(result).Inc()
}

// RecordConsentDecision records an approval or denial at the consent step
func (m *Metrics) RecordConsentDecision(approved bool) {
	decision := "approved"
	if !approved {
		decision = "denied"
	}
	m.ConsentDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordCodeIssued records authorization code issuance
func (m *Metrics) RecordCodeIssued(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.CodesIssuedTotal.WithLabelValues(result).Inc()
}

// RecordTokenIssued records token issuance
func (m *Metrics) RecordTokenIssued(tokenType, grantType string, generationTime time.Duration) {
	m.TokensIssuedTotal.WithLabelValues(tokenType, grantType).Inc()
	m.TokensActive.WithLabelValues(tokenType).Inc()
	m.TokenGenerationDuration.WithLabelValues(grantType).Observe(generationTime.Seconds())
}

// RecordTokenRevoked records token revocation
func (m *Metrics) RecordTokenRevoked(tokenType string) {
	m.TokensRevokedTotal.WithLabelValues(tokenType).Inc()
	m.TokensActive.WithLabelValues(tokenType).Dec()
}

// RecordTokenRefresh records a refresh-token exchange attempt
func (m *Metrics) RecordTokenRefresh(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokensRefreshedTotal.WithLabelValues(result).Inc()
}

// RecordIntrospection records an introspection request
func (m *Metrics) RecordIntrospection(result string, duration time.Duration) {
	m.IntrospectionTotal.WithLabelValues(result).Inc()
	m.IntrospectionDuration.Observe(duration.Seconds())
}

// RecordClientRegistered records a dynamic client registration
func (m *Metrics) RecordClientRegistered(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.ClientsRegisteredTotal.WithLabelValues(result).Inc()
	if success {
		m.ClientsRegistered.Inc()
	}
}

// RecordClientAuthAttempt records a client authentication attempt
func (m *Metrics) RecordClientAuthAttempt(method string, success bool) {
	result := resultSuccess
	if !success {
		result = resultFailure
	}
	m.ClientAuthAttemptsTotal.WithLabelValues(method, result).Inc()
}

// RecordDelegationTokenIssued records a delegated user token issuance
func (m *Metrics) RecordDelegationTokenIssued(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.DelegationTokensIssuedTotal.WithLabelValues(result).Inc()
}

// RecordDelegationTokenValidation records a delegated user token validation
func (m *Metrics) RecordDelegationTokenValidation(result string) {
	m.DelegationTokenValidationsTotal.WithLabelValues(result).Inc()
}

// SetActiveTokensCount sets the current count of active tokens (for periodic updates)
func (m *Metrics) SetActiveTokensCount(tokenType string, count int) {
	m.TokensActive.WithLabelValues(tokenType).Set(float64(count))
}

// SetRegisteredClientsCount sets the current count of registered clients
func (m *Metrics) SetRegisteredClientsCount(count int) {
	m.ClientsRegistered.Set(float64(count))
}

// RecordDatabaseQueryError records a database query error
func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordExpirySweep records one pass of the expiry sweeper
func (m *Metrics) RecordExpirySweep(codesDeleted, tokensDeleted int64, duration time.Duration) {
	m.ExpirySweepDeletedTotal.WithLabelValues("code").Add(float64(codesDeleted))
	m.ExpirySweepDeletedTotal.WithLabelValues("token").Add(float64(tokensDeleted))
	m.ExpirySweepDuration.Observe(duration.Seconds())
}

// GetMetrics returns the initialized Prometheus metrics, or nil when metrics
// are disabled.
func GetMetrics() *Metrics {
	return defaultMetrics
}
