package prometheus

import (
	"time"

	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	workflowsTotal   *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	persistAttempts  *prometheus.HistogramVec
	publishTotal     *prometheus.CounterVec
	eventsConsumed   *prometheus.CounterVec

	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered on reg.
// Pass prometheus.DefaultRegisterer to expose the metrics on /metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		workflowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_workflows_total",
				Help: "Total number of order creation workflows by outcome",
			},
			[]string{"status", "stage", "kind"},
		),
		workflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orders_workflow_duration_seconds",
				Help:    "Order creation workflow duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"status"},
		),
		persistAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orders_persist_attempts",
				Help:    "Store write attempts per persist step",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
			[]string{"outcome"},
		),
		publishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_events_published_total",
				Help: "Total number of OrderCreated publish steps by outcome",
			},
			[]string{"outcome"},
		),
		eventsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_events_consumed_total",
				Help: "Total number of bus events handled by the worker pool",
			},
			[]string{"type", "status"},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "orders_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "orders_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "orders_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// RecordWorkflow records the outcome of one workflow execution
func (c *Collector) RecordWorkflow(status string, stage domain.Stage, kind domain.ErrorKind, duration time.Duration) {
	c.workflowsTotal.WithLabelValues(status, string(stage), string(kind)).Inc()
	c.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPersistAttempts records how many store writes a persist step needed
func (c *Collector) RecordPersistAttempts(outcome string, attempts int) {
	c.persistAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}

// RecordPublish records a publish step outcome
func (c *Collector) RecordPublish(outcome string) {
	c.publishTotal.WithLabelValues(outcome).Inc()
}

// RecordEventConsumed records an event handled by a worker
func (c *Collector) RecordEventConsumed(eventType string, status string) {
	c.eventsConsumed.WithLabelValues(eventType, status).Inc()
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}
