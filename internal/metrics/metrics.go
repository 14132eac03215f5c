package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/josh-kwaku/mobile-money/internal/saga"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	sagaOutcomes      *prometheus.CounterVec
	compensations     *prometheus.CounterVec
	sideEffectFailure *prometheus.CounterVec
	redemptions       *prometheus.CounterVec
	batchItems        *prometheus.CounterVec
	reconcileFindings *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		sagaOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilemoney_saga_outcomes_total",
			Help: "Money-movement operations by kind and terminal state",
		}, []string{"kind", "state"}),
		compensations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilemoney_saga_compensations_total",
			Help: "Operations whose applied steps were reversed successfully",
		}, []string{"kind"}),
		sideEffectFailure: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilemoney_saga_side_effect_failures_total",
			Help: "Commission credits that failed and were not retried",
		}, []string{"kind"}),
		redemptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilemoney_withdrawal_redemptions_total",
			Help: "Withdrawal code redemption attempts by result",
		}, []string{"result"}),
		batchItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilemoney_batch_deposit_items_total",
			Help: "Batch deposit items by result",
		}, []string{"result"}),
		reconcileFindings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilemoney_reconcile_findings_total",
			Help: "Anomalies reported by the reconciler",
		}, []string{"check"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilemoney_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mobilemoney_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) SagaFinished(kind string, state saga.State) {
	m.sagaOutcomes.WithLabelValues(kind, string(state)).Inc()
}

func (m *Metrics) Compensated(kind string) {
	m.compensations.WithLabelValues(kind).Inc()
}

func (m *Metrics) SideEffectFailed(kind string) {
	m.sideEffectFailure.WithLabelValues(kind).Inc()
}

func (m *Metrics) Redemption(result string) {
	m.redemptions.WithLabelValues(result).Inc()
}

func (m *Metrics) BatchItem(success bool) {
	result := "failed"
	if success {
		result = "succeeded"
	}
	m.batchItems.WithLabelValues(result).Inc()
}

func (m *Metrics) ReconcileFinding(check string, n int) {
	m.reconcileFindings.WithLabelValues(check).Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

var _ saga.Observer = (*Metrics)(nil)
