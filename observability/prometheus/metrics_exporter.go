package prometheus

import (
	"time"

	"github.com/Swind/go-call-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds    *prom.HistogramVec
	taskPanicTotal         *prom.CounterVec
	taskRejectedTotal      *prom.CounterVec
	queueDepth             *prom.GaugeVec
	requestDurationSeconds *prom.HistogramVec
	requestQueueSeconds    *prom.HistogramVec
	requestsTotal          *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "callrunner"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	r := &registrar{reg: reg, namespace: namespace, buckets: buckets}
	m := &MetricsExporter{
		taskDurationSeconds: r.histogram("task_duration_seconds", "Pool task execution duration in seconds.", "pool"),
		taskPanicTotal:      r.counter("task_panic_total", "Total number of task panics.", "pool"),
		taskRejectedTotal:   r.counter("task_rejected_total", "Total number of tasks refused by a pool.", "pool", "reason"),
		queueDepth:          r.gauge("queue_depth", "Queue depth observed on the last enqueue.", "pool"),

		requestDurationSeconds: r.histogram("request_duration_seconds",
			"Request duration from enqueue to completion in seconds.", "system", "method", "status"),
		requestQueueSeconds: r.histogram("request_queue_seconds",
			"Time requests spent waiting for a worker in seconds.", "pool"),
		requestsTotal: r.counter("requests_total",
			"Total number of finished requests by outcome.", "system", "method", "pool", "status"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(poolName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(poolName, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(poolName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(poolName, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(poolName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(poolName, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records task rejection events.
func (m *MetricsExporter) RecordTaskRejected(poolName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(poolName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordRequestCompleted records the outcome and timings of a finished request.
// Rejected requests never reached a worker, so they skip the queue histogram.
func (m *MetricsExporter) RecordRequestCompleted(route core.RouteKey, poolName string, status core.Status, stat *core.RequestStatistic) {
	if m == nil {
		return
	}
	system := normalizeLabel(route.System, "unknown")
	method := normalizeLabel(route.Method, "unknown")
	pool := normalizeLabel(poolName, "unknown")

	m.requestsTotal.WithLabelValues(system, method, pool, status.String()).Inc()
	if stat == nil {
		return
	}
	m.requestDurationSeconds.WithLabelValues(system, method, status.String()).Observe(stat.Total().Seconds())
	if _, ok := stat.At(core.PhaseCallStart); ok {
		m.requestQueueSeconds.WithLabelValues(pool).Observe(stat.QueueTime().Seconds())
	}
}
