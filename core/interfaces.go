package core

import (
	"context"
	"time"

	"k8s.io/utils/clock"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task (carries the pool, see GetCurrentPool)
	// - poolName: The name of the pool where the panic occurred
	// - workerID: The ID of the worker goroutine
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		return
	}
	logger.Error("task panicked",
		F("pool", poolName),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting pool and request metrics.
// Implementations can send metrics to monitoring systems (Prometheus, OTel, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a pool task took to execute.
	RecordTaskDuration(poolName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(poolName string, panicInfo any)

	// RecordQueueDepth records the current queue depth of a pool.
	RecordQueueDepth(poolName string, depth int)

	// RecordTaskRejected records that a pool refused a task.
	//
	// Parameters:
	// - poolName: The name of the pool
	// - reason: Why the task was rejected ("saturated", "shutdown")
	RecordTaskRejected(poolName string, reason string)

	// RecordRequestCompleted records one finished request.
	//
	// Parameters:
	// - route: The route of the request
	// - poolName: The pool the request was resolved to
	// - status: The terminal status
	// - stat: The request statistic (durations are computed on read)
	RecordRequestCompleted(route RouteKey, poolName string, status Status, stat *RequestStatistic)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(poolName string, panicInfo any)             {}
func (m *NilMetrics) RecordQueueDepth(poolName string, depth int)                {}
func (m *NilMetrics) RecordTaskRejected(poolName string, reason string)          {}
func (m *NilMetrics) RecordRequestCompleted(route RouteKey, poolName string, status Status, stat *RequestStatistic) {
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a pool refuses a task because it is
// saturated or shutting down.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(poolName string, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks at debug level; rejection is a
// normal backpressure signal.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(poolName string, reason string) {
	if h.Logger == nil {
		return
	}
	h.Logger.Debug("task rejected", F("pool", poolName), F("reason", reason))
}

// =============================================================================
// PoolHandlers: Pluggable collaborators for WorkerPool
// =============================================================================

// PoolHandlers holds optional collaborators for a WorkerPool.
// All fields are optional; if not provided, default implementations will be used.
type PoolHandlers struct {
	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger defaults to NoOpLogger.
	Logger Logger

	// Clock drives idle-expiry timers and statistic timestamps. Defaults to clock.RealClock.
	Clock clock.WithTicker
}

// DefaultPoolHandlers returns handlers with default implementations.
func DefaultPoolHandlers() *PoolHandlers {
	h := &PoolHandlers{}
	h.applyDefaults()
	return h
}

func (h *PoolHandlers) applyDefaults() {
	if h.Logger == nil {
		h.Logger = NewNoOpLogger()
	}
	if h.PanicHandler == nil {
		h.PanicHandler = &DefaultPanicHandler{Logger: h.Logger}
	}
	if h.Metrics == nil {
		h.Metrics = &NilMetrics{}
	}
	if h.RejectedTaskHandler == nil {
		h.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: h.Logger}
	}
	if h.Clock == nil {
		h.Clock = clock.RealClock{}
	}
}
