package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// PoolRegistry owns the named WorkerPools and the per-system default pool
// mapping. Like RouteTable it is built at startup and frozen by Configure;
// Resolve then runs without locks.
type PoolRegistry struct {
	mu           sync.Mutex
	configured   atomic.Bool
	pools        map[string]*WorkerPool
	defaultPools map[string]string
	fallbackPool string
	routes       *RouteTable
	logger       Logger
}

// NewPoolRegistry creates an empty registry. logger may be nil.
func NewPoolRegistry(logger Logger) *PoolRegistry {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &PoolRegistry{
		pools:        make(map[string]*WorkerPool),
		defaultPools: make(map[string]string),
		logger:       logger,
	}
}

// Add registers pool under its name.
func (r *PoolRegistry) Add(pool *WorkerPool) error {
	if pool == nil {
		return fmt.Errorf("%w: nil pool", ErrInvalidPoolConfig)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.configured.Load() {
		return ErrFrozen
	}
	if _, ok := r.pools[pool.Name()]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicatePool, pool.Name())
	}
	r.pools[pool.Name()] = pool
	return nil
}

// SetDefaultPools maps systems to the pool their routes use unless a route
// names its own pool. Every referenced pool must already be added.
func (r *PoolRegistry) SetDefaultPools(defaults map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.configured.Load() {
		return ErrFrozen
	}
	for system, name := range defaults {
		if _, ok := r.pools[name]; !ok {
			return fmt.Errorf("%w: %q (default pool of system %q)", ErrUnknownPool, name, system)
		}
	}
	for system, name := range defaults {
		r.defaultPools[system] = name
	}
	return nil
}

// SetFallbackPool names the pool used by routes whose system has no default.
func (r *PoolRegistry) SetFallbackPool(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.configured.Load() {
		return ErrFrozen
	}
	if _, ok := r.pools[name]; !ok {
		return fmt.Errorf("%w: %q (fallback pool)", ErrUnknownPool, name)
	}
	r.fallbackPool = name
	return nil
}

// Configure validates the wiring of routes against the registered pools and
// freezes both. It may succeed only once; every failure is a *ConfigError and
// should abort startup.
func (r *PoolRegistry) Configure(routes *RouteTable) error {
	if routes == nil {
		return newConfigError("routes", ErrInvalidRoute, "route table is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.configured.Load() {
		return newConfigError("", ErrFrozen, "registry already configured")
	}
	if len(r.pools) == 0 {
		return newConfigError("pools", ErrUnknownPool, "no pools registered")
	}

	onFallback, err := routes.freezeIf(r.checkRoutesLocked)
	if err != nil {
		return err
	}

	if len(onFallback) > 0 {
		names := make([]string, len(onFallback))
		for i, k := range onFallback {
			names[i] = k.String()
		}
		r.logger.Warn("routes use the built-in fallback timeout",
			F("timeout", routes.FallbackTimeOut().String()), F("routes", names))
	}

	r.routes = routes
	r.configured.Store(true)
	r.logger.Info("pool registry configured",
		F("pools", len(r.pools)), F("routes", len(routes.Routes())), F("fallbackPool", r.fallbackPool))
	return nil
}

// checkRoutesLocked verifies every route resolves to a registered pool.
func (r *PoolRegistry) checkRoutesLocked(routes []RouteConfiguration) error {
	for _, cfg := range routes {
		if cfg.PoolName != "" {
			if _, ok := r.pools[cfg.PoolName]; !ok {
				return newConfigError("routes."+cfg.Key.String(), ErrUnknownPool,
					"references unknown pool %q", cfg.PoolName)
			}
			continue
		}
		if _, ok := r.defaultPools[cfg.Key.System]; ok {
			continue
		}
		if r.fallbackPool == "" {
			return newConfigError("routes."+cfg.Key.String(), ErrUnknownPool,
				"no pool configured for the route, its system %q, or a fallback", cfg.Key.System)
		}
	}
	return nil
}

// Configured reports whether Configure succeeded.
func (r *PoolRegistry) Configured() bool { return r.configured.Load() }

// Routes returns the route table frozen by Configure.
func (r *PoolRegistry) Routes() *RouteTable { return r.routes }

// Resolve returns the pool for key: the route's pool, else the system default,
// else the fallback pool.
func (r *PoolRegistry) Resolve(key RouteKey) (*WorkerPool, error) {
	if !r.configured.Load() {
		return nil, ErrNotConfigured
	}
	return r.resolve(r.routes.Resolve(key))
}

func (r *PoolRegistry) resolve(cfg RouteConfiguration) (*WorkerPool, error) {
	name := cfg.PoolName
	if name == "" {
		name = r.defaultPools[cfg.Key.System]
	}
	if name == "" {
		name = r.fallbackPool
	}
	if p, ok := r.pools[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: no pool for route %s", ErrUnknownPool, cfg.Key)
}

// Pool returns a pool by name.
func (r *PoolRegistry) Pool(name string) (*WorkerPool, bool) {
	if !r.configured.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	p, ok := r.pools[name]
	return p, ok
}

// Pools returns all pools sorted by name.
func (r *PoolRegistry) Pools() []*WorkerPool {
	if !r.configured.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	out := make([]*WorkerPool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Stats snapshots every pool.
func (r *PoolRegistry) Stats() []QueueStatistic {
	pools := r.Pools()
	out := make([]QueueStatistic, len(pools))
	for i, p := range pools {
		out[i] = p.Stats()
	}
	return out
}

// Shutdown shuts down every pool concurrently and returns the first error.
func (r *PoolRegistry) Shutdown(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range r.Pools() {
		g.Go(func() error {
			return p.Shutdown(ctx)
		})
	}
	return g.Wait()
}
