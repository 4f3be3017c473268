package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	jobmetrics "github.com/odyssey-erp/bizstore/internal/jobs"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobmetrics.NewMetrics(metrics.Registerer()).Track("audit:sync").End(nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "bizstore_tasks_total") {
		t.Fatalf("expected body to contain bizstore_tasks_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestSyncCollectors(t *testing.T) {
	m := NewMetrics()

	m.RemoteCall("get", nil, time.Millisecond)
	m.RemoteCall("get", shared.Connectivity(errors.New("dial")), time.Millisecond)
	m.RemoteCall("atomic_replace", fmt.Errorf("sales: %w", shared.ErrVersionConflict), time.Millisecond)
	m.CacheFallback("sales_2024")
	m.CacheFallback("sales_2025")
	m.CacheFallback("bogus key")
	m.Transaction("convert_quote", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteCalls.WithLabelValues("get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteCalls.WithLabelValues("get", "offline")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteCalls.WithLabelValues("atomic_replace", "conflict")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheFallbacks.WithLabelValues("sales")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheFallbacks.WithLabelValues("other")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("convert_quote", "ok")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RemoteCall("get", nil, 0)
	m.CacheFallback("clients")
	m.Transaction("x", nil)
	assert.Equal(t, http.StatusServiceUnavailable, func() int {
		rr := httptest.NewRecorder()
		m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rr.Code
	}())
}
