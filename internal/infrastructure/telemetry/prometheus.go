package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const prometheusNamespace = "syncengine"

// PrometheusCollector owns the scrape registry served on /metrics.
// It uses its own registry so tests can build any number of them.
type PrometheusCollector struct {
	registry *prometheus.Registry

	runsTotal           *prometheus.CounterVec
	recordsTotal        *prometheus.CounterVec
	runDurationSeconds  *prometheus.HistogramVec
	retryAttemptsTotal  *prometheus.CounterVec
	adjustmentDecisions *prometheus.CounterVec
	lastRunTimestamp    *prometheus.GaugeVec
}

// NewPrometheusCollector creates a collector. withRuntime also registers the
// Go runtime and process collectors.
func NewPrometheusCollector(withRuntime bool) *PrometheusCollector {
	c := &PrometheusCollector{registry: prometheus.NewRegistry()}

	c.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Name:      "runs_total",
			Help:      "Closed sync runs by type and final status.",
		},
		[]string{"sync_type", "status"},
	)
	c.recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Name:      "records_total",
			Help:      "Records processed by sync runs by type and outcome.",
		},
		[]string{"sync_type", "outcome"},
	)
	c.runDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: prometheusNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of closed sync runs in seconds.",
			Buckets:   RunDurationBuckets,
		},
		[]string{"sync_type"},
	)
	c.retryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Name:      "retry_attempts_total",
			Help:      "Failed record replays by type and outcome.",
		},
		[]string{"sync_type", "outcome"},
	)
	c.adjustmentDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Name:      "adjustment_decisions_total",
			Help:      "Pending adjustments approved or rejected.",
		},
		[]string{"status"},
	)
	c.lastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: prometheusNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last run of each type closed.",
		},
		[]string{"sync_type", "status"},
	)

	c.registry.MustRegister(
		c.runsTotal,
		c.recordsTotal,
		c.runDurationSeconds,
		c.retryAttemptsTotal,
		c.adjustmentDecisions,
		c.lastRunTimestamp,
	)
	if withRuntime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// Register adds collectors owned elsewhere, such as the database pool stats
func (c *PrometheusCollector) Register(cs ...prometheus.Collector) error {
	for _, col := range cs {
		if err := c.registry.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Registry exposes the underlying registry
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
