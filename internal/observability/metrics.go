package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/bizstore/internal/partition"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

// Metrics collects the Prometheus metrics of the service. It implements
// remote.Recorder and docsync.Recorder.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	remoteCalls     *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
	cacheFallbacks  *prometheus.CounterVec
	transactions    *prometheus.CounterVec
}

// NewMetrics initialises the registry and collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bizstore_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bizstore_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	remoteCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bizstore_remote_calls_total",
		Help: "Remote document store calls by operation and outcome.",
	}, []string{"op", "outcome"})
	remoteDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bizstore_remote_call_duration_seconds",
		Help:    "Remote document store call duration by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bizstore_cache_fallbacks_total",
		Help: "Reads served from the local cache because the remote was unreachable.",
	}, []string{"collection"})
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bizstore_transactions_total",
		Help: "Atomic multi-document commits by name and outcome.",
	}, []string{"tx", "outcome"})
	registry.MustRegister(requests, duration, remoteCalls, remoteDuration, fallbacks, transactions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		remoteCalls:     remoteCalls,
		remoteDuration:  remoteDuration,
		cacheFallbacks:  fallbacks,
		transactions:    transactions,
	}
}

// RemoteCall records one remote document store call.
func (m *Metrics) RemoteCall(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(op, outcome(err)).Inc()
	m.remoteDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// CacheFallback records a read served from the local cache. Sharded keys are
// folded into their collection to bound label cardinality.
func (m *Metrics) CacheFallback(key string) {
	if m == nil {
		return
	}
	collection, _, err := partition.Resolve(key)
	if err != nil {
		collection = "other"
	}
	m.cacheFallbacks.WithLabelValues(string(collection)).Inc()
}

// Transaction records the outcome of an atomic commit.
func (m *Metrics) Transaction(name string, err error) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(name, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrVersionConflict):
		return "conflict"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case shared.IsOffline(err):
		return "offline"
	default:
		return "error"
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for component collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
