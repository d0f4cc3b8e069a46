package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics for workflow execution.
//
// Metrics exposed (all namespaced "agentflow"):
//
//  1. inflight_nodes (gauge): nodes currently executing across all runs.
//  2. queue_depth (gauge): size of the level currently being dispatched.
//  3. node_latency_ms (histogram): per-node wall time from first attempt
//     to terminal state. Labels: node_id, status.
//  4. retries_total (counter): cumulative retry attempts.
//     Labels: node_id, reason.
//  5. workflows_total (counter): finished workflow executions.
//     Labels: status.
//
// Expose via HTTP for scraping:
//
//	registry := prometheus.NewRegistry()
//	metrics := engine.NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// All methods are safe for concurrent use.
type Metrics struct {
	inflightNodes prometheus.Gauge
	queueDepth    prometheus.Gauge
	nodeLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	workflows     *prometheus.CounterVec
}

// NewMetrics creates and registers all engine metrics with the given
// registry (prometheus.DefaultRegisterer if nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentflow",
			Name:      "inflight_nodes",
			Help:      "Current number of nodes executing concurrently",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentflow",
			Name:      "queue_depth",
			Help:      "Number of nodes in the level currently being dispatched",
		}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentflow",
			Name:      "node_latency_ms",
			Help:      "Node wall time in milliseconds from first attempt to terminal state",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"node_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow",
			Name:      "retries_total",
			Help:      "Cumulative count of node retry attempts",
		}, []string{"node_id", "reason"}),
		workflows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow",
			Name:      "workflows_total",
			Help:      "Finished workflow executions by terminal status",
		}, []string{"status"}),
	}
}

// RecordNodeLatency observes one node's total wall time with its terminal
// status ("completed", "failed", "skipped").
func (m *Metrics) RecordNodeLatency(nodeID string, latency time.Duration, status string) {
	if m == nil {
		return
	}
	m.nodeLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries counts one retry attempt for a node. Reason is
// "timeout" or "failure".
func (m *Metrics) IncrementRetries(nodeID, reason string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(nodeID, reason).Inc()
}

// NodeStarted / NodeFinished track the in-flight gauge.
func (m *Metrics) NodeStarted() {
	if m == nil {
		return
	}
	m.inflightNodes.Inc()
}

func (m *Metrics) NodeFinished() {
	if m == nil {
		return
	}
	m.inflightNodes.Dec()
}

// SetQueueDepth records the size of the level being dispatched.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// WorkflowFinished counts a terminal workflow status.
func (m *Metrics) WorkflowFinished(status string) {
	if m == nil {
		return
	}
	m.workflows.WithLabelValues(status).Inc()
}
