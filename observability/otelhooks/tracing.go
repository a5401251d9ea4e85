// Package otelhooks exports dispatcher requests to OpenTelemetry through
// pre-dispatch and completion hooks.
package otelhooks

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Swind/go-call-runner/core"
)

// scopeName is the instrumentation scope name for callrunner telemetry.
const scopeName = "github.com/Swind/go-call-runner"

// SpanName is the name of the span covering one request.
const SpanName = "callrunner.request"

// Tracing wraps each request in a span. The span starts in the pre-dispatch
// hook, travels on the call context, and ends in the completion hook.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing uses the global TracerProvider. With none configured the noop
// tracer makes both hooks pass-through.
func NewTracing() *Tracing {
	return NewTracingWithTracer(otel.Tracer(scopeName))
}

// NewTracingWithTracer uses the provided tracer.
func NewTracingWithTracer(tracer trace.Tracer) *Tracing {
	return &Tracing{tracer: tracer}
}

// PreDispatch returns the hook that starts the span. Register it first so the
// call context of later hooks already carries the span.
func (t *Tracing) PreDispatch() core.PreDispatchHook {
	return func(ctx context.Context, info core.RequestInfo) (context.Context, error) {
		ctx, _ = t.tracer.Start(ctx, SpanName,
			trace.WithAttributes(
				attribute.String("callrunner.request.id", info.ID),
				attribute.String("callrunner.system", info.Route.System),
				attribute.String("callrunner.method", info.Route.Method),
				attribute.String("callrunner.pool", info.Pool),
				attribute.Int64("callrunner.timeout_ms", info.TimeOut.Duration().Milliseconds()),
			),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		return ctx, nil
	}
}

// Completion returns the hook that records the outcome and ends the span.
func (t *Tracing) Completion() core.CompletionHook {
	return func(ctx context.Context, c core.Completion) {
		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}
		attrs := []attribute.KeyValue{
			attribute.String("callrunner.status", c.Status.String()),
			attribute.Int("callrunner.pool.active", c.Queue.ActiveCount),
			attribute.Int("callrunner.pool.queued", c.Queue.QueueDepth),
		}
		if c.Statistic != nil {
			attrs = append(attrs,
				attribute.Int64("callrunner.queue_time_us", c.Statistic.QueueTime().Microseconds()),
				attribute.Int64("callrunner.call_time_us", c.Statistic.CallTime().Microseconds()),
			)
		}
		span.SetAttributes(attrs...)

		if c.Status == core.StatusSuccess {
			span.SetStatus(codes.Ok, "")
		} else {
			desc := c.Status.String()
			if c.Err != nil {
				span.RecordError(c.Err)
				desc = c.Err.Error()
			}
			span.SetStatus(codes.Error, desc)
		}
		span.End()
	}
}
