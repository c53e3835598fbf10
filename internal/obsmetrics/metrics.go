// Package obsmetrics exports the process's Prometheus metrics: per-layer
// scheduling duration, task outcomes, rate-limiter wait time, checkpoint
// persist latency, GraphRAG recompute duration, and event-emission
// overhead. Grounded on the teacher pack's
// ai/metrics/prometheus.go (88lin-divinesense) — same registry-owning
// exporter shape, adapted from chat/tool/LLM metrics to DAG execution
// metrics.
package obsmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// defaultLatencyBuckets covers sub-millisecond event emission up through
// multi-minute layer execution in one Histogram, matching the pack's own
// wide-range default (88lin-divinesense's DefaultConfig) rather than a
// single-scale bucket set.
var defaultLatencyBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60}

// Metrics owns one Prometheus registry and every counter/histogram/gauge
// this process exports.
type Metrics struct {
	registry *prometheus.Registry

	layerDuration *prometheus.HistogramVec
	taskOutcomes  *prometheus.CounterVec

	rateLimiterWait *prometheus.HistogramVec

	checkpointPersist *prometheus.HistogramVec
	checkpointErrors  *prometheus.CounterVec

	graphragRecompute *prometheus.HistogramVec
	graphragEntropy   prometheus.Gauge

	eventEmission *prometheus.HistogramVec

	decisionOutcomes *prometheus.CounterVec
}

// Config configures the exporter. A nil Registry creates a fresh one,
// matching 88lin-divinesense's Config.Registry convention.
type Config struct {
	Registry       *prometheus.Registry
	LatencyBuckets []float64
}

// DefaultConfig returns the package's recommended bucket layout.
func DefaultConfig() Config {
	return Config{LatencyBuckets: defaultLatencyBuckets}
}

// New builds a Metrics exporter and registers every collector on cfg's
// registry (or a fresh one if none is given).
func New(cfg Config) *Metrics {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{registry: registry}

	m.layerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dagrag",
		Subsystem: "scheduler",
		Name:      "layer_duration_seconds",
		Help:      "Wall-clock duration of one scheduler layer, from dispatch to settle-all.",
		Buckets:   cfg.LatencyBuckets,
	}, []string{"workflow_id"})

	m.taskOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dagrag",
		Subsystem: "scheduler",
		Name:      "task_outcomes_total",
		Help:      "Total task completions by terminal status.",
	}, []string{"kind", "status"})

	m.rateLimiterWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dagrag",
		Subsystem: "ratelimit",
		Name:      "wait_seconds",
		Help:      "Time a task spent waiting for a rate-limit token before dispatch.",
		Buckets:   cfg.LatencyBuckets,
	}, []string{"resource"})

	m.checkpointPersist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dagrag",
		Subsystem: "checkpoint",
		Name:      "persist_seconds",
		Help:      "Time to persist one checkpoint to the backing store.",
		Buckets:   cfg.LatencyBuckets,
	}, []string{"backend"})

	m.checkpointErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dagrag",
		Subsystem: "checkpoint",
		Name:      "persist_errors_total",
		Help:      "Total checkpoint persist failures.",
	}, []string{"backend"})

	m.graphragRecompute = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dagrag",
		Subsystem: "graphrag",
		Name:      "recompute_seconds",
		Help:      "Time to recompute PageRank + Louvain over the tool graph.",
		Buckets:   cfg.LatencyBuckets,
	}, []string{"trigger"})

	m.graphragEntropy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dagrag",
		Subsystem: "graphrag",
		Name:      "pagerank_entropy_nats",
		Help:      "Shannon entropy of the most recent PageRank distribution.",
	})

	m.eventEmission = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dagrag",
		Subsystem: "events",
		Name:      "emission_seconds",
		Help:      "Time to emit one event onto the stream's subscriber channels.",
		Buckets:   cfg.LatencyBuckets,
	}, []string{"event_type"})

	m.decisionOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dagrag",
		Subsystem: "decisions",
		Name:      "outcomes_total",
		Help:      "Total AIL/HIL decision outcomes by gate and verdict.",
	}, []string{"gate", "verdict"})

	registry.MustRegister(
		m.layerDuration,
		m.taskOutcomes,
		m.rateLimiterWait,
		m.checkpointPersist,
		m.checkpointErrors,
		m.graphragRecompute,
		m.graphragEntropy,
		m.eventEmission,
		m.decisionOutcomes,
	)

	return m
}

// ObserveLayerDuration records one scheduler layer's wall-clock time.
func (m *Metrics) ObserveLayerDuration(workflowID string, d time.Duration) {
	m.layerDuration.WithLabelValues(workflowID).Observe(d.Seconds())
}

// RecordTaskOutcome increments the task-outcome counter for kind/status.
func (m *Metrics) RecordTaskOutcome(kind, status string) {
	m.taskOutcomes.WithLabelValues(kind, status).Inc()
}

// ObserveRateLimiterWait records how long a task waited for resource's
// token before being dispatched.
func (m *Metrics) ObserveRateLimiterWait(resource string, d time.Duration) {
	m.rateLimiterWait.WithLabelValues(resource).Observe(d.Seconds())
}

// ObserveCheckpointPersist records one checkpoint save's latency against
// backend (e.g. "sqlite", "postgres").
func (m *Metrics) ObserveCheckpointPersist(backend string, d time.Duration) {
	m.checkpointPersist.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordCheckpointError increments the checkpoint persist-error counter.
func (m *Metrics) RecordCheckpointError(backend string) {
	m.checkpointErrors.WithLabelValues(backend).Inc()
}

// ObserveGraphRAGRecompute records one PageRank+Louvain recompute's
// latency, tagged by what triggered it (e.g. "post_execution", "manual").
func (m *Metrics) ObserveGraphRAGRecompute(trigger string, d time.Duration) {
	m.graphragRecompute.WithLabelValues(trigger).Observe(d.Seconds())
}

// SetGraphRAGEntropy updates the graph-health entropy gauge.
func (m *Metrics) SetGraphRAGEntropy(entropy float64) {
	m.graphragEntropy.Set(entropy)
}

// ObserveEventEmission records how long one event took to reach every
// subscriber channel, the metric backing the event stream's sub-5ms
// emission-overhead budget.
func (m *Metrics) ObserveEventEmission(eventType string, d time.Duration) {
	m.eventEmission.WithLabelValues(eventType).Observe(d.Seconds())
}

// RecordDecisionOutcome increments the AIL/HIL decision-outcome counter.
func (m *Metrics) RecordDecisionOutcome(gate, verdict string) {
	m.decisionOutcomes.WithLabelValues(gate, verdict).Inc()
}

// Handler returns the HTTP handler serving this exporter's registry in
// Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry, for tests that want
// to call registry.Gather() directly.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
