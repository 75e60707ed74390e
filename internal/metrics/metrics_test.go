package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsRunsAndChains(t *testing.T) {
	m := New()

	m.RunStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsActive))

	m.ChainFinished("source", "completed", 20*time.Millisecond)
	m.ChainFinished("source", "failed", time.Millisecond)
	m.Cancelled()
	m.RunFinished("failed")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.runsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chainsTotal.WithLabelValues("source", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cancellations))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RunFinished("completed")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `tessera_controller_runs_total{state="completed"} 1`))
}

func TestWatchDropped(t *testing.T) {
	m := New()
	var n int64 = 3
	m.WatchDropped(func() int64 { return n })

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), "tessera_events_dropped_total 3")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RunStarted()
	m.ChainFinished("x", "completed", time.Second)
	m.RunFinished("completed")
	m.Cancelled()
	assert.Nil(t, m.Registry())

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
