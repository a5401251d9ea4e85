package prometheus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Swind/go-call-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	clocktesting "k8s.io/utils/clock/testing"
)

type dispatcherStub struct {
	stats core.DispatcherStats
}

func (s dispatcherStub) Stats() core.DispatcherStats { return s.stats }

type poolStub struct {
	stats core.QueueStatistic
}

func (s poolStub) Stats() core.QueueStatistic { return s.stats }

func TestSnapshotPoller_CollectsDispatcherAndPoolStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddDispatcher("main", dispatcherStub{stats: core.DispatcherStats{
		Dispatched:     10,
		InFlight:       3,
		Completed:      map[string]int64{"SUCCESS": 6, "TIMEOUT": 1},
		ArmedWatchdogs: 3,
	}})
	poller.AddPool("pool-a", poolStub{stats: core.QueueStatistic{
		Name:            "pool-a",
		PoolSize:        4,
		ActiveCount:     2,
		IdleCount:       2,
		LargestPoolSize: 5,
		QueueDepth:      4,
		RejectedCount:   7,
		Running:         true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		inFlight := testutil.ToFloat64(poller.dispatcherInFlight.WithLabelValues("main"))
		active := testutil.ToFloat64(poller.poolActive.WithLabelValues("pool-a"))
		return inFlight == 3 && active == 2
	})

	if got := testutil.ToFloat64(poller.dispatcherCompleted.WithLabelValues("main", "TIMEOUT")); got != 1 {
		t.Fatalf("timeout completed gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.poolQueued.WithLabelValues("pool-a")); got != 4 {
		t.Fatalf("pool queued gauge = %v, want 4", got)
	}
	if got := testutil.ToFloat64(poller.poolRejected.WithLabelValues("pool-a")); got != 7 {
		t.Fatalf("pool rejected gauge = %v, want 7", got)
	}
	if got := testutil.ToFloat64(poller.poolRunning.WithLabelValues("pool-a")); got != 1 {
		t.Fatalf("pool running gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_AddRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	registry := core.NewPoolRegistry(nil)
	for _, name := range []string{"billing", "search"} {
		pool, err := core.NewWorkerPool(core.PoolConfig{Name: name, CorePoolSize: 1, MaxPoolSize: 2, QueueCapacity: 3})
		if err != nil {
			t.Fatalf("NewWorkerPool failed: %v", err)
		}
		t.Cleanup(pool.Stop)
		if err := registry.Add(pool); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	poller.AddRegistry(registry)
	poller.collectOnce()

	for _, name := range []string{"billing", "search"} {
		if got := testutil.ToFloat64(poller.poolRunning.WithLabelValues(name)); got != 1 {
			t.Errorf("pool %s running gauge = %v, want 1", name, got)
		}
	}
}

type mutablePool struct {
	mu    sync.Mutex
	stats core.QueueStatistic
}

func (m *mutablePool) Stats() core.QueueStatistic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *mutablePool) setQueued(n int) {
	m.mu.Lock()
	m.stats.QueueDepth = n
	m.mu.Unlock()
}

func TestSnapshotPoller_TicksOnClock(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, time.Minute, WithPollerClock(fc))
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	pool := &mutablePool{stats: core.QueueStatistic{QueueDepth: 1}}
	poller.AddPool("pool-a", pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	// The first collection runs immediately.
	assertEventually(t, 2*time.Second, func() bool {
		return testutil.ToFloat64(poller.poolQueued.WithLabelValues("pool-a")) == 1
	})
	assertEventually(t, 2*time.Second, fc.HasWaiters)

	pool.setQueued(9)
	fc.Step(time.Minute)
	assertEventually(t, 2*time.Second, func() bool {
		return testutil.ToFloat64(poller.poolQueued.WithLabelValues("pool-a")) == 9
	})
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
