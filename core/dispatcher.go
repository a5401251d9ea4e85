package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"k8s.io/utils/clock"
)

// DispatcherConfig holds optional collaborators of a Dispatcher.
type DispatcherConfig struct {
	// Logger defaults to NoOpLogger.
	Logger Logger

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// Clock drives the watchdog and request statistics. Defaults to clock.RealClock.
	Clock clock.WithTicker

	// PreDispatchHooks run in order before every submission.
	PreDispatchHooks []PreDispatchHook

	// CompletionHooks run in order once per finished request.
	CompletionHooks []CompletionHook

	// CallbackRunner delivers asynchronous callbacks. When nil, or when it refuses
	// the task, the callback runs on the goroutine that completed the request.
	CallbackRunner TaskRunner

	// HistoryCapacity bounds RecentRequests. Defaults to 100.
	HistoryCapacity int
}

// Dispatcher routes requests to pools, enforces timeouts and completes
// responses exactly once.
type Dispatcher struct {
	registry *PoolRegistry
	routes   *RouteTable
	watchdog *Watchdog
	clock    clock.WithTicker

	logger          Logger
	metrics         Metrics
	preHooks        []PreDispatchHook
	completionHooks []CompletionHook
	callbackRunner  TaskRunner
	history         *requestHistory

	dispatched atomic.Int64
	inFlight   atomic.Int64
	byStatus   [StatusRejected + 1]atomic.Int64
	closed     atomic.Bool
}

// NewDispatcher creates a dispatcher over a configured registry.
func NewDispatcher(registry *PoolRegistry, config DispatcherConfig) (*Dispatcher, error) {
	if registry == nil || !registry.Configured() {
		return nil, ErrNotConfigured
	}
	if config.Logger == nil {
		config.Logger = NewNoOpLogger()
	}
	if config.Metrics == nil {
		config.Metrics = &NilMetrics{}
	}
	if config.Clock == nil {
		config.Clock = clock.RealClock{}
	}

	return &Dispatcher{
		registry:        registry,
		routes:          registry.Routes(),
		watchdog:        NewWatchdog(config.Clock),
		clock:           config.Clock,
		logger:          config.Logger,
		metrics:         config.Metrics,
		preHooks:        append([]PreDispatchHook(nil), config.PreDispatchHooks...),
		completionHooks: append([]CompletionHook(nil), config.CompletionHooks...),
		callbackRunner:  config.CallbackRunner,
		history:         newRequestHistory(config.HistoryCapacity),
	}, nil
}

// Registry returns the pool registry.
func (d *Dispatcher) Registry() *PoolRegistry { return d.registry }

// Routes returns the frozen route table.
func (d *Dispatcher) Routes() *RouteTable { return d.routes }

func (d *Dispatcher) dispatch(ctx context.Context, c dispatchable) {
	st := c.state()
	if !st.dispatched.CompareAndSwap(false, true) {
		panic(fmt.Errorf("%w: %s", ErrAlreadyDispatched, st.id))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.dispatched.Add(1)
	d.inFlight.Add(1)

	route := d.routes.Resolve(st.route)
	st.timeout = route.EffectiveTimeOut()
	pool, err := d.registry.resolve(route)
	if err != nil {
		// Configure validated every registered route; this is a wiring bug.
		panic(err)
	}
	st.pool = pool.Name()
	st.stats.Mark(PhaseEnqueued)

	callCtx, cancel := context.WithCancel(ctx)
	st.ctx, st.cancel = callCtx, cancel

	if d.closed.Load() {
		if c.fail(StatusRejected, ErrPoolShutdown) {
			d.finish(c, pool)
		}
		return
	}

	info := st.info()
	for _, hook := range d.preHooks {
		hookCtx, err := hook(st.ctx, info)
		if err != nil {
			if c.fail(StatusRejected, err) {
				d.finish(c, pool)
			}
			return
		}
		if hookCtx != nil {
			st.ctx = hookCtx
		}
	}

	st.deadline = d.watchdog.Arm(st.timeout.Duration(), func() {
		if c.fail(StatusTimeout, fmt.Errorf("%w after %s", ErrTimeout, st.timeout)) {
			st.abort()
			d.finish(c, pool)
		}
	})

	if err := pool.Submit(func(workerCtx context.Context) {
		d.run(workerCtx, c, pool)
	}); err != nil {
		d.watchdog.Disarm(st.deadline)
		if c.fail(StatusRejected, err) {
			d.finish(c, pool)
		}
	}
}

// run executes on a pool worker.
func (d *Dispatcher) run(workerCtx context.Context, c dispatchable, pool *WorkerPool) {
	st := c.state()
	if c.done() {
		// Timed out while queued.
		return
	}
	if workerCtx.Err() != nil {
		d.watchdog.Disarm(st.deadline)
		if c.fail(StatusRejected, ErrPoolShutdown) {
			d.finish(c, pool)
		}
		return
	}

	// A forced pool shutdown interrupts the call.
	stop := context.AfterFunc(workerCtx, st.abort)
	defer stop()

	if c.execute(st.ctx) {
		d.watchdog.Disarm(st.deadline)
		d.finish(c, pool)
	}
}

// finish runs once per request on the goroutine that completed the response.
// Waiters are released only after statistics, history and hooks are done.
func (d *Dispatcher) finish(c dispatchable, pool *WorkerPool) {
	if !c.markLogged() {
		return
	}
	st := c.state()
	status, err := c.result()

	q := pool.Stats()
	st.stats.attachQueue(q)

	d.inFlight.Add(-1)
	if status.IsTerminal() {
		d.byStatus[status].Add(1)
	}
	d.metrics.RecordRequestCompleted(st.route, st.pool, status, st.stats)
	d.history.Add(RequestRecord{
		RequestID:  st.id,
		Route:      st.route,
		Pool:       st.pool,
		Status:     status,
		Err:        err,
		Timeout:    st.timeout,
		QueueTime:  st.stats.QueueTime(),
		CallTime:   st.stats.CallTime(),
		Total:      st.stats.Total(),
		FinishedAt: d.clock.Now(),
	})

	completion := Completion{
		RequestInfo: st.info(),
		Status:      status,
		Err:         err,
		Statistic:   st.stats,
		Queue:       q,
	}
	for _, hook := range d.completionHooks {
		d.runCompletionHook(st.ctx, hook, completion)
	}
	st.cancel()
	c.publish()

	if st.callback != nil {
		d.deliver(st)
	}
}

func (d *Dispatcher) runCompletionHook(ctx context.Context, hook CompletionHook, c Completion) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("completion hook panicked",
				F("request", c.ID), F("panic", r), F("stack", string(debug.Stack())))
		}
	}()
	hook(ctx, c)
}

func (d *Dispatcher) deliver(st *requestState) {
	task := func(context.Context) {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("callback panicked",
					F("request", st.id), F("panic", r), F("stack", string(debug.Stack())))
			}
			st.stats.Mark(PhaseCallbackEnd)
		}()
		st.stats.Mark(PhaseCallbackStart)
		st.callback()
	}

	switch r := d.callbackRunner.(type) {
	case nil:
		task(context.Background())
	case interface{ Submit(Task) error }:
		if err := r.Submit(task); err != nil {
			d.logger.Debug("callback runner refused task, running inline",
				F("request", st.id), F("error", err))
			task(context.Background())
		}
	default:
		r.PostTask(task)
	}
}

// Stats returns dispatcher-level counters.
func (d *Dispatcher) Stats() DispatcherStats {
	completed := make(map[string]int64, len(AllStatuses))
	for _, s := range AllStatuses {
		completed[s.String()] = d.byStatus[s].Load()
	}
	return DispatcherStats{
		Dispatched:     d.dispatched.Load(),
		InFlight:       d.inFlight.Load(),
		Completed:      completed,
		ArmedWatchdogs: d.watchdog.Pending(),
	}
}

// RecentRequests returns up to limit finished requests, newest first.
func (d *Dispatcher) RecentRequests(limit int) []RequestRecord {
	return d.history.Recent(limit)
}

// LastRequest returns the most recently finished request.
func (d *Dispatcher) LastRequest() (RequestRecord, bool) {
	return d.history.Last()
}

// Shutdown rejects new requests, shuts down every pool and stops the watchdog.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := d.registry.Shutdown(ctx)
	d.watchdog.Stop()
	if err != nil {
		d.logger.Warn("dispatcher shutdown incomplete", F("error", err))
		return err
	}
	d.logger.Info("dispatcher shut down", F("dispatched", d.dispatched.Load()))
	return nil
}
