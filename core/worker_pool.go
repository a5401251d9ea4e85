package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

// DefaultIdleExpiry applies when PoolConfig.IdleExpiry is unset.
var DefaultIdleExpiry = Seconds(60)

// PoolConfig sizes a WorkerPool.
type PoolConfig struct {
	Name          string
	CorePoolSize  int
	MaxPoolSize   int
	QueueCapacity int
	IdleExpiry    TimeOut
}

// Validate checks sizing invariants: 0 <= core <= max, max >= 1, capacity >= 0.
func (c PoolConfig) Validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidPoolConfig)
	case c.CorePoolSize < 0:
		return fmt.Errorf("%w: pool %q: corePoolSize must be >= 0", ErrInvalidPoolConfig, c.Name)
	case c.MaxPoolSize < 1:
		return fmt.Errorf("%w: pool %q: maxPoolSize must be >= 1", ErrInvalidPoolConfig, c.Name)
	case c.CorePoolSize > c.MaxPoolSize:
		return fmt.Errorf("%w: pool %q: corePoolSize %d exceeds maxPoolSize %d",
			ErrInvalidPoolConfig, c.Name, c.CorePoolSize, c.MaxPoolSize)
	case c.QueueCapacity < 0:
		return fmt.Errorf("%w: pool %q: queueCapacity must be >= 0", ErrInvalidPoolConfig, c.Name)
	case !c.IdleExpiry.IsZero() && c.IdleExpiry.Duration() <= 0:
		return fmt.Errorf("%w: pool %q: idleExpiry must be positive", ErrInvalidPoolConfig, c.Name)
	}
	return nil
}

// WorkerPool is a named, bounded goroutine pool.
//
// Sizing follows the core/max/queue model: up to CorePoolSize workers are started
// on demand, further work is queued up to QueueCapacity, and once the queue is
// full extra workers are started up to MaxPoolSize. Beyond that Submit fails
// with ErrRejected without blocking. Workers above the core size retire after
// IdleExpiry without work.
type WorkerPool struct {
	config PoolConfig
	queue  *FIFOTaskQueue

	mu       sync.Mutex
	workers  int // guarded by mu
	idle     int // guarded by mu
	shutdown bool
	nextID   int
	handoffs int // queued tasks claimed by idle workers, guarded by mu

	// mirrors of guarded state for lock-free Stats
	poolSize  atomic.Int32
	idleCount atomic.Int32
	largest   atomic.Int32
	active    atomic.Int32
	completed atomic.Int64
	rejected  atomic.Int64
	running   atomic.Bool

	signal     chan struct{}
	quit       chan struct{}
	terminated chan struct{}
	termOnce   sync.Once
	wg         sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler
	logger              Logger
	clock               clock.WithTicker
}

// NewWorkerPool creates a pool with default handlers.
func NewWorkerPool(config PoolConfig) (*WorkerPool, error) {
	return NewWorkerPoolWithHandlers(config, DefaultPoolHandlers())
}

// NewWorkerPoolWithHandlers creates a pool. Workers are started lazily on Submit.
func NewWorkerPoolWithHandlers(config PoolConfig, handlers *PoolHandlers) (*WorkerPool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.IdleExpiry.IsZero() {
		config.IdleExpiry = DefaultIdleExpiry
	}

	h := PoolHandlers{}
	if handlers != nil {
		h = *handlers
	}
	h.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		config:              config,
		queue:               NewFIFOTaskQueue(config.QueueCapacity),
		signal:              make(chan struct{}, config.MaxPoolSize),
		quit:                make(chan struct{}),
		terminated:          make(chan struct{}),
		cancel:              cancel,
		panicHandler:        h.PanicHandler,
		metrics:             h.Metrics,
		rejectedTaskHandler: h.RejectedTaskHandler,
		logger:              h.Logger,
		clock:               h.Clock,
	}
	p.ctx = context.WithValue(ctx, taskRunnerKey, TaskRunner(p))
	p.running.Store(true)
	return p, nil
}

// Name returns the pool name.
func (p *WorkerPool) Name() string { return p.config.Name }

// Config returns the pool sizing (with defaults applied).
func (p *WorkerPool) Config() PoolConfig { return p.config }

// IsRunning reports whether the pool still accepts work.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }

// Submit hands task to the pool. It never blocks: a saturated pool returns
// ErrRejected and a shut down pool returns ErrPoolShutdown.
func (p *WorkerPool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		p.reject("shutdown")
		return ErrPoolShutdown
	}

	if p.workers < p.config.CorePoolSize {
		p.spawnLocked(task)
		p.mu.Unlock()
		return nil
	}

	// A task handed to an idle worker sits in the queue until that worker
	// wakes, so pending hand-offs do not count against the queue capacity.
	var queued bool
	if p.idle > p.handoffs {
		p.queue.Push(task)
		p.handoffs++
		queued = true
	} else {
		queued = p.queue.OfferExcluding(task, p.handoffs)
	}
	if queued {
		if p.workers == 0 {
			p.spawnLocked(nil)
		}
		depth := p.queue.Len()
		p.mu.Unlock()
		p.notify()
		p.metrics.RecordQueueDepth(p.config.Name, depth)
		return nil
	}

	if p.workers < p.config.MaxPoolSize {
		p.spawnLocked(task)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.reject("saturated")
	return ErrRejected
}

// PostTask implements TaskRunner. Rejections are reported to the
// RejectedTaskHandler and metrics only.
func (p *WorkerPool) PostTask(task Task) {
	_ = p.Submit(task)
}

// PrestartCoreWorkers starts idle core workers ahead of demand and returns how
// many were started.
func (p *WorkerPool) PrestartCoreWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	started := 0
	for !p.shutdown && p.workers < p.config.CorePoolSize {
		p.spawnLocked(nil)
		started++
	}
	return started
}

func (p *WorkerPool) reject(reason string) {
	p.rejected.Add(1)
	p.rejectedTaskHandler.HandleRejectedTask(p.config.Name, reason)
	p.metrics.RecordTaskRejected(p.config.Name, reason)
}

func (p *WorkerPool) notify() {
	select {
	case p.signal <- struct{}{}:
	default:
		// Signal channel full; every worker is already awake or about to be.
	}
}

func (p *WorkerPool) spawnLocked(first Task) {
	p.workers++
	p.nextID++
	size := int32(p.workers)
	p.poolSize.Store(size)
	if size > p.largest.Load() {
		p.largest.Store(size)
	}
	p.wg.Add(1)
	go p.workerLoop(p.nextID, first)
}

// exitLocked removes the calling worker from the pool.
func (p *WorkerPool) exitLocked() {
	p.workers--
	p.poolSize.Store(int32(p.workers))
}

// workerLoop runs first (if any) and then pulls work until told to exit.
func (p *WorkerPool) workerLoop(id int, first Task) {
	defer p.wg.Done()

	task := first
	for {
		if task != nil {
			p.runTask(id, task)
		}
		var ok bool
		task, ok = p.getTask()
		if !ok {
			return
		}
	}
}

// getTask blocks until work is available. It returns false when the worker
// should exit: the pool shut down with an empty queue, or the worker is above
// core size and stayed idle for IdleExpiry.
func (p *WorkerPool) getTask() (Task, bool) {
	var timer clock.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		p.mu.Lock()
		if task, ok := p.queue.Pop(); ok {
			if p.handoffs > 0 {
				p.handoffs--
			}
			p.mu.Unlock()
			return task, true
		}
		if p.shutdown {
			p.exitLocked()
			p.mu.Unlock()
			return nil, false
		}
		timed := p.workers > p.config.CorePoolSize
		p.idle++
		p.idleCount.Store(int32(p.idle))
		p.mu.Unlock()

		var expired <-chan time.Time
		if timed {
			if timer == nil {
				timer = p.clock.NewTimer(p.config.IdleExpiry.Duration())
			} else {
				timer.Reset(p.config.IdleExpiry.Duration())
			}
			expired = timer.C()
		}

		timedOut := false
		select {
		case <-p.signal:
		case <-p.quit:
		case <-expired:
			timedOut = true
		}

		p.mu.Lock()
		p.idle--
		p.idleCount.Store(int32(p.idle))
		if timedOut && p.queue.Len() == 0 && p.workers > p.config.CorePoolSize {
			p.exitLocked()
			p.mu.Unlock()
			p.logger.Debug("idle worker retired", F("pool", p.config.Name))
			return nil, false
		}
		p.mu.Unlock()
	}
}

func (p *WorkerPool) runTask(workerID int, task Task) {
	p.active.Add(1)
	start := p.clock.Now()
	defer func() {
		p.active.Add(-1)
		p.completed.Add(1)
		p.metrics.RecordTaskDuration(p.config.Name, p.clock.Since(start))
		if r := recover(); r != nil {
			p.metrics.RecordTaskPanic(p.config.Name, r)
			p.panicHandler.HandlePanic(p.ctx, p.config.Name, workerID, r, debug.Stack())
		}
	}()
	task(p.ctx)
}

// Stats returns a lock-free snapshot of the pool counters.
func (p *WorkerPool) Stats() QueueStatistic {
	return QueueStatistic{
		Name:            p.config.Name,
		PoolSize:        int(p.poolSize.Load()),
		CorePoolSize:    p.config.CorePoolSize,
		MaxPoolSize:     p.config.MaxPoolSize,
		ActiveCount:     int(p.active.Load()),
		IdleCount:       int(p.idleCount.Load()),
		LargestPoolSize: int(p.largest.Load()),
		QueueDepth:      p.queue.Len(),
		QueueCapacity:   p.config.QueueCapacity,
		CompletedCount:  p.completed.Load(),
		RejectedCount:   p.rejected.Load(),
		Running:         p.running.Load(),
		TakenAt:         p.clock.Now(),
	}
}

// QueuedTaskCount returns the number of tasks waiting for a worker.
func (p *WorkerPool) QueuedTaskCount() int { return p.queue.Len() }

// ActiveTaskCount returns the number of tasks currently executing.
func (p *WorkerPool) ActiveTaskCount() int { return int(p.active.Load()) }

// WorkerCount returns the current number of worker goroutines.
func (p *WorkerPool) WorkerCount() int { return int(p.poolSize.Load()) }

// Shutdown stops accepting work and waits for queued and in-flight tasks to
// finish. If ctx ends first, the worker context is cancelled: in-flight tasks
// observe the cancellation and remaining queued tasks run with a cancelled
// context. Shutdown then waits for every worker to exit and returns ctx.Err().
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.shutdown {
		p.shutdown = true
		p.running.Store(false)
		close(p.quit)
		p.logger.Debug("pool shutting down",
			F("pool", p.config.Name), F("queued", p.queue.Len()), F("active", p.active.Load()))
	}
	p.mu.Unlock()

	p.termOnce.Do(func() {
		go func() {
			p.wg.Wait()
			close(p.terminated)
		}()
	})

	select {
	case <-p.terminated:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.terminated
		return fmt.Errorf("pool %q shutdown: %w", p.config.Name, ctx.Err())
	}
}

// ShutdownGraceful waits up to timeout for the pool to drain.
func (p *WorkerPool) ShutdownGraceful(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown graceful timeout after %v: %w", timeout, err)
	}
	return nil
}

// Stop cancels in-flight work immediately and waits for workers to exit.
func (p *WorkerPool) Stop() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = p.Shutdown(ctx)
}

// Terminated is closed once every worker has exited after Shutdown.
func (p *WorkerPool) Terminated() <-chan struct{} { return p.terminated }
