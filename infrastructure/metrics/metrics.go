// Package metrics collects the Prometheus series this module exposes at
// /metrics: HTTP ingress traffic plus the domain counters spec's ambient
// observability section calls for (enrichment outcomes, breaker
// transitions, credit ledger movement, webhook delivery results).
// Grounded on internal/app/metrics/metrics.go's collector set and
// struct-plus-registry shape, generalized from the teacher's single
// package-level Registry to a constructor that takes its own
// prometheus.Registerer, so cmd/appserver owns the registry instance
// instead of relying on a process-global.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector this module registers.
type Metrics struct {
	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	enrichmentCalls    *prometheus.CounterVec
	enrichmentDuration *prometheus.HistogramVec

	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec

	creditTransactions *prometheus.CounterVec
	creditBalance      *prometheus.GaugeVec

	webhookDeliveries *prometheus.CounterVec
	webhookDeadLetter prometheus.Counter
}

// New constructs a Metrics instance and registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "enrichlayer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enrichlayer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "enrichlayer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),

		enrichmentCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enrichlayer",
			Subsystem: "enrichment",
			Name:      "activity_calls_total",
			Help:      "Total number of enrichRecord activity invocations by provider and outcome.",
		}, []string{"provider", "outcome"}),
		enrichmentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "enrichlayer",
			Subsystem: "enrichment",
			Name:      "activity_duration_seconds",
			Help:      "Duration of enrichRecord activity invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider"}),

		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "enrichlayer",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state per provider (0=closed, 1=open, 2=half-open).",
		}, []string{"provider"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enrichlayer",
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Total number of circuit breaker state transitions by provider and target state.",
		}, []string{"provider", "to_state"}),

		creditTransactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enrichlayer",
			Subsystem: "credit",
			Name:      "transactions_total",
			Help:      "Total number of credit ledger transactions by type.",
		}, []string{"type"}),
		creditBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "enrichlayer",
			Subsystem: "credit",
			Name:      "balance",
			Help:      "Most recently observed credit balance for a workspace.",
		}, []string{"workspace_id"}),

		webhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enrichlayer",
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Total number of webhook delivery attempts by outcome.",
		}, []string{"outcome"}),
		webhookDeadLetter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enrichlayer",
			Subsystem: "webhook",
			Name:      "dead_letters_total",
			Help:      "Total number of webhook deliveries moved to the dead-letter table.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.httpInFlight, m.httpRequests, m.httpDuration,
			m.enrichmentCalls, m.enrichmentDuration,
			m.breakerState, m.breakerTransitions,
			m.creditTransactions, m.creditBalance,
			m.webhookDeliveries, m.webhookDeadLetter,
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}
	return m
}

// Handler returns an HTTP handler exposing reg's registered series.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler wraps next with HTTP in-flight/count/duration metrics,
// adapted from the teacher's InstrumentHandler.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, r.URL.Path).Observe(duration.Seconds())
	})
}

// RecordEnrichmentCall records one enrichRecord activity invocation.
// outcome is one of "success", "failure", "error".
func (m *Metrics) RecordEnrichmentCall(provider, outcome string, duration time.Duration) {
	m.enrichmentCalls.WithLabelValues(provider, outcome).Inc()
	m.enrichmentDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordBreakerState reports a provider's current breaker state as a gauge
// value and increments the transition counter toward that state.
func (m *Metrics) RecordBreakerState(provider string, state int, stateName string) {
	m.breakerState.WithLabelValues(provider).Set(float64(state))
	m.breakerTransitions.WithLabelValues(provider, stateName).Inc()
}

// RecordCreditTransaction records one ledger entry and the workspace's
// resulting balance.
func (m *Metrics) RecordCreditTransaction(txnType, workspaceID string, balanceAfter int) {
	m.creditTransactions.WithLabelValues(txnType).Inc()
	m.creditBalance.WithLabelValues(workspaceID).Set(float64(balanceAfter))
}

// RecordWebhookDelivery records one delivery attempt outcome ("delivered",
// "retrying", "dead_letter").
func (m *Metrics) RecordWebhookDelivery(outcome string) {
	m.webhookDeliveries.WithLabelValues(outcome).Inc()
	if outcome == "dead_letter" {
		m.webhookDeadLetter.Inc()
	}
}
