package otelhooks

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Swind/go-call-runner/core"
)

// Metrics returns a completion hook that records request metrics using the
// global MeterProvider.
//
// Instruments:
//   - callrunner.request.duration (Float64Histogram): enqueue to completion in seconds
//   - callrunner.request.queue_time (Float64Histogram): time spent waiting for a worker
//   - callrunner.requests (Int64Counter): finished requests
//
// All carry the system, method, pool and status attributes.
func Metrics() core.CompletionHook {
	return MetricsWithMeter(otel.Meter(scopeName))
}

// MetricsWithMeter returns the metrics hook using the provided meter.
func MetricsWithMeter(meter metric.Meter) core.CompletionHook {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"callrunner.request.duration",
		metric.WithDescription("Duration of requests from enqueue to completion in seconds"),
		metric.WithUnit("s"),
	)
	queueTime, _ := meter.Float64Histogram(
		"callrunner.request.queue_time",
		metric.WithDescription("Time requests spent waiting for a pool worker in seconds"),
		metric.WithUnit("s"),
	)
	requests, _ := meter.Int64Counter(
		"callrunner.requests",
		metric.WithDescription("Total number of finished requests"),
		metric.WithUnit("{request}"),
	)

	return func(ctx context.Context, c core.Completion) {
		attrs := metric.WithAttributes(
			attribute.String("system", c.Route.System),
			attribute.String("method", c.Route.Method),
			attribute.String("pool", c.Pool),
			attribute.String("status", c.Status.String()),
		)
		requests.Add(ctx, 1, attrs)
		if c.Statistic == nil {
			return
		}
		duration.Record(ctx, c.Statistic.Total().Seconds(), attrs)
		if _, ok := c.Statistic.At(core.PhaseCallStart); ok {
			queueTime.Record(ctx, c.Statistic.QueueTime().Seconds(), attrs)
		}
	}
}
