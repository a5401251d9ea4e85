package core

import (
	"context"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// TaskRunner: Define task submission interface
// =============================================================================

// TaskRunner accepts fire-and-forget tasks. WorkerPool implements it, which makes
// any pool usable as the delivery runner for asynchronous dispatch callbacks.
type TaskRunner interface {
	PostTask(task Task)
}

// TaskRunnerFunc adapts a function to TaskRunner.
type TaskRunnerFunc func(task Task)

// PostTask calls f(task).
func (f TaskRunnerFunc) PostTask(task Task) { f(task) }

// =============================================================================
// Context Helper
// =============================================================================
type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

// GetCurrentTaskRunner returns the runner executing the task that owns ctx.
func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}

// GetCurrentPool returns the WorkerPool executing the task that owns ctx, if any.
func GetCurrentPool(ctx context.Context) *WorkerPool {
	if p, ok := GetCurrentTaskRunner(ctx).(*WorkerPool); ok {
		return p
	}
	return nil
}
