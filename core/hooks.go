package core

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RequestInfo describes a request to hooks.
type RequestInfo struct {
	ID      string
	Route   RouteKey
	Pool    string
	TimeOut TimeOut
}

// Completion is handed to completion hooks once per request.
type Completion struct {
	RequestInfo
	Status    Status
	Err       error
	Statistic *RequestStatistic
	Queue     QueueStatistic
}

// PreDispatchHook runs synchronously, in registration order, before a request
// is submitted to its pool. It may return a derived context for the call; a
// non-nil error completes the request with StatusRejected.
type PreDispatchHook func(ctx context.Context, info RequestInfo) (context.Context, error)

// CompletionHook observes a finished request. It fires exactly once per
// response; ctx is the call context returned by the pre-dispatch hooks.
type CompletionHook func(ctx context.Context, c Completion)

// LoggingHook logs successes at debug level and every other outcome at warn.
func LoggingHook(logger Logger) CompletionHook {
	return func(_ context.Context, c Completion) {
		fields := []Field{
			F("request", c.ID),
			F("route", c.Route.String()),
			F("pool", c.Pool),
			F("status", c.Status.String()),
			F("queueTime", c.Statistic.QueueTime()),
			F("callTime", c.Statistic.CallTime()),
			F("total", c.Statistic.Total()),
			F("poolActive", c.Queue.ActiveCount),
			F("poolQueued", c.Queue.QueueDepth),
		}
		if c.Status == StatusSuccess {
			logger.Debug("request completed", fields...)
			return
		}
		if c.Err != nil {
			fields = append(fields, F("cause", c.Err.Error()))
		}
		logger.Warn("request failed", fields...)
	}
}

// RateLimitHook rejects requests of a system whose limiter has no token left.
// Systems without a limiter pass through.
func RateLimitHook(limiters map[string]*rate.Limiter) PreDispatchHook {
	return func(ctx context.Context, info RequestInfo) (context.Context, error) {
		l, ok := limiters[info.Route.System]
		if !ok || l.Allow() {
			return ctx, nil
		}
		return ctx, fmt.Errorf("%w: system %q", ErrRateLimited, info.Route.System)
	}
}
