package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// reconciliation job.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	reconcileRuns   prometheus.Counter
	reconcileMoves  *prometheus.CounterVec
	reconcileErrors prometheus.Counter
	reconcileTiming prometheus.Histogram
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	reconcileRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_runs_total",
		Help: "Total reconciliation job invocations",
	})

	reconcileMoves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_transitions_total",
		Help: "Status transitions applied by the reconciliation job",
	}, []string{"to"})

	reconcileErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_record_failures_total",
		Help: "Per-record failures during reconciliation",
	})

	reconcileTiming := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciler_run_duration_seconds",
		Help:    "Duration of reconciliation job invocations",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		reconcileRuns, reconcileMoves, reconcileErrors, reconcileTiming)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		reconcileRuns:   reconcileRuns,
		reconcileMoves:  reconcileMoves,
		reconcileErrors: reconcileErrors,
		reconcileTiming: reconcileTiming,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records a completed HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordCacheOperation tracks a cache lookup outcome.
func (s *MetricsService) RecordCacheOperation(hit bool) {
	if hit {
		s.cacheHits.Inc()
		return
	}
	s.cacheMisses.Inc()
}

// RecordReconcileRun tracks one reconciliation invocation.
func (s *MetricsService) RecordReconcileRun(duration time.Duration) {
	s.reconcileRuns.Inc()
	s.reconcileTiming.Observe(duration.Seconds())
}

// RecordReconcileTransition tracks a status advance applied by the job.
func (s *MetricsService) RecordReconcileTransition(to string) {
	s.reconcileMoves.WithLabelValues(to).Inc()
}

// RecordReconcileFailure tracks a per-record write failure.
func (s *MetricsService) RecordReconcileFailure() {
	s.reconcileErrors.Inc()
}
