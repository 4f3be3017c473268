package jobmetrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerCountsOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("audit:sync").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("audit:sync").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("audit:sync", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("audit:sync", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("audit:sync")))
}

func TestDroppedReasons(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.Dropped("audit:sync", errors.New("offline"))
	m.Dropped("audit:sync", fmt.Errorf("bad payload: %w", asynq.SkipRetry))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("audit:sync", "exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("audit:sync", "skipped")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Track("x").End(nil))
	m.Dropped("x", nil)
}
