package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-call-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"
)

// DispatcherSnapshotProvider provides current dispatcher stats snapshots.
type DispatcherSnapshotProvider interface {
	Stats() core.DispatcherStats
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.QueueStatistic
}

// SnapshotPoller periodically exports dispatcher/pool Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration
	clock    clock.WithTicker

	dispatchersMu sync.RWMutex
	dispatchers   map[string]DispatcherSnapshotProvider

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	dispatcherInFlight   *prom.GaugeVec
	dispatcherDispatched *prom.GaugeVec
	dispatcherCompleted  *prom.GaugeVec
	dispatcherWatchdogs  *prom.GaugeVec

	poolQueued   *prom.GaugeVec
	poolActive   *prom.GaugeVec
	poolIdle     *prom.GaugeVec
	poolWorkers  *prom.GaugeVec
	poolLargest  *prom.GaugeVec
	poolRejected *prom.GaugeVec
	poolRunning  *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// PollerOption configures a SnapshotPoller.
type PollerOption func(*SnapshotPoller)

// WithPollerClock replaces the clock driving the poll ticker.
func WithPollerClock(c clock.WithTicker) PollerOption {
	return func(p *SnapshotPoller) {
		if c != nil {
			p.clock = c
		}
	}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration, opts ...PollerOption) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	g := &registrar{reg: reg, namespace: "callrunner"}
	p := &SnapshotPoller{
		interval:    interval,
		clock:       clock.RealClock{},
		dispatchers: make(map[string]DispatcherSnapshotProvider),
		pools:       make(map[string]PoolSnapshotProvider),

		dispatcherInFlight:   g.gauge("dispatcher_in_flight", "Requests dispatched but not yet finished.", "dispatcher"),
		dispatcherDispatched: g.gauge("dispatcher_dispatched_total", "Dispatcher dispatched request count snapshot.", "dispatcher"),
		dispatcherCompleted:  g.gauge("dispatcher_completed_total", "Dispatcher completed request count snapshot by status.", "dispatcher", "status"),
		dispatcherWatchdogs:  g.gauge("dispatcher_armed_watchdogs", "Timeout watchdogs currently armed.", "dispatcher"),

		poolQueued:   g.gauge("pool_queued", "Queued tasks per pool.", "pool"),
		poolActive:   g.gauge("pool_active", "Active tasks per pool.", "pool"),
		poolIdle:     g.gauge("pool_idle", "Idle workers per pool.", "pool"),
		poolWorkers:  g.gauge("pool_workers", "Worker count per pool.", "pool"),
		poolLargest:  g.gauge("pool_largest_workers", "Largest worker count a pool has reached.", "pool"),
		poolRejected: g.gauge("pool_rejected_total", "Pool rejected task count snapshot.", "pool"),
		poolRunning:  g.gauge("pool_running", "Pool running state (1=running, 0=stopped).", "pool"),
	}
	if g.err != nil {
		return nil, g.err
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// AddDispatcher adds or replaces a dispatcher snapshot provider by name.
func (p *SnapshotPoller) AddDispatcher(name string, provider DispatcherSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "dispatcher")
	p.dispatchersMu.Lock()
	p.dispatchers[name] = provider
	p.dispatchersMu.Unlock()
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// AddRegistry adds every pool of the registry under its own name.
func (p *SnapshotPoller) AddRegistry(registry *core.PoolRegistry) {
	if p == nil || registry == nil {
		return
	}
	for _, pool := range registry.Pools() {
		p.AddPool(pool.Name(), pool)
	}
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.dispatchersMu.RLock()
	for name, provider := range p.dispatchers {
		stats := provider.Stats()
		p.dispatcherInFlight.WithLabelValues(name).Set(float64(stats.InFlight))
		p.dispatcherDispatched.WithLabelValues(name).Set(float64(stats.Dispatched))
		p.dispatcherWatchdogs.WithLabelValues(name).Set(float64(stats.ArmedWatchdogs))
		for status, n := range stats.Completed {
			p.dispatcherCompleted.WithLabelValues(name, status).Set(float64(n))
		}
	}
	p.dispatchersMu.RUnlock()

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.QueueDepth))
		p.poolActive.WithLabelValues(name).Set(float64(stats.ActiveCount))
		p.poolIdle.WithLabelValues(name).Set(float64(stats.IdleCount))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.PoolSize))
		p.poolLargest.WithLabelValues(name).Set(float64(stats.LargestPoolSize))
		p.poolRejected.WithLabelValues(name).Set(float64(stats.RejectedCount))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.poolsMu.RUnlock()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
