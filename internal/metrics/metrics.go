package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tessera"

// Metrics holds the Prometheus collectors for controller runs. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec   // by final state
	runsActive    prometheus.Gauge         // 1 while a run is in flight
	chainsTotal   *prometheus.CounterVec   // by entry and result (completed/quit/cancelled/failed)
	chainDuration *prometheus.HistogramVec // by entry
	cancellations prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "runs_total",
			Help:      "Total number of finished runs by final state",
		}, []string{"state"}),

		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "runs_active",
			Help:      "Whether a run is currently in flight",
		}),

		chainsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "chains_total",
			Help:      "Total number of chains triggered from the run queue by result",
		}, []string{"entry", "result"}),

		chainDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "chain_duration_seconds",
			Help:      "Wall time of one chain from trigger to return",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"entry"}),

		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "cancellations_total",
			Help:      "Total number of cancellation requests that took effect",
		}),
	}

	m.registry.MustRegister(m.runsTotal, m.runsActive, m.chainsTotal, m.chainDuration, m.cancellations)
	return m
}

// Registry exposes the underlying registry for callers that add collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WatchDropped exports n, typically events.Hub.Dropped, as the number of
// event deliveries skipped for slow subscribers.
func (m *Metrics) WatchDropped(n func() int64) {
	if m == nil || n == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Event deliveries skipped because a subscriber was not keeping up",
	}, func() float64 { return float64(n()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsActive.Set(1)
}

func (m *Metrics) RunFinished(state string) {
	if m == nil {
		return
	}
	m.runsActive.Set(0)
	m.runsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) ChainFinished(entry, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.chainsTotal.WithLabelValues(entry, result).Inc()
	m.chainDuration.WithLabelValues(entry).Observe(d.Seconds())
}

func (m *Metrics) Cancelled() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}
