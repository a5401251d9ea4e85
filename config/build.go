package config

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/Swind/go-call-runner/core"
)

// BuildOptions carries the collaborators Build hands to pools and the dispatcher.
// Every field is optional.
type BuildOptions struct {
	Logger       core.Logger
	Metrics      core.Metrics
	PanicHandler core.PanicHandler
	Clock        clock.WithTicker

	// Routes holds routes registered in code. Build applies the document's
	// timeouts and method overrides to it and freezes it.
	Routes *core.RouteTable

	// PreDispatchHooks run after the document's rate limiters.
	PreDispatchHooks []core.PreDispatchHook
	CompletionHooks  []core.CompletionHook
	CallbackRunner   core.TaskRunner
	HistoryCapacity  int
}

// Build creates the pools, wires routes and defaults, configures the registry
// and returns a ready dispatcher. Any error means the process should not start.
func (doc *Document) Build(opts BuildOptions) (*core.Dispatcher, error) {
	if opts.Logger == nil {
		opts.Logger = core.NewNoOpLogger()
	}
	routes := opts.Routes
	if routes == nil {
		routes = core.NewRouteTable()
	}

	registry := core.NewPoolRegistry(opts.Logger)
	var created []*core.WorkerPool
	fail := func(err error) (*core.Dispatcher, error) {
		for _, p := range created {
			p.Stop()
		}
		return nil, err
	}

	for _, spec := range doc.Pools {
		pool, err := core.NewWorkerPoolWithHandlers(poolConfig(spec), &core.PoolHandlers{
			PanicHandler: opts.PanicHandler,
			Metrics:      opts.Metrics,
			Logger:       opts.Logger,
			Clock:        opts.Clock,
		})
		if err != nil {
			return fail(&core.ConfigError{Field: "pools." + spec.Name, Message: err.Error(), Err: err})
		}
		created = append(created, pool)
		if err := registry.Add(pool); err != nil {
			return fail(err)
		}
	}

	defaults := make(map[string]string)
	limiters := make(map[string]*rate.Limiter)
	for _, system := range sortedSystems(doc) {
		sys := doc.Systems[system]
		if sys.Pool != "" {
			defaults[system] = sys.Pool
		}
		if sys.Timeout != nil {
			if err := routes.SetSystemTimeOut(system, *sys.Timeout); err != nil {
				return fail(err)
			}
		}
		if sys.RateLimit != nil {
			limiters[system] = rate.NewLimiter(rate.Limit(sys.RateLimit.PerSecond), sys.RateLimit.Burst)
		}
		for method, m := range sys.Methods {
			o := core.RouteOverride{PoolName: m.Pool}
			if m.Timeout != nil {
				o.TimeOut = *m.Timeout
			}
			key := core.RouteKey{System: system, Method: method}
			if err := routes.Override(key, o); err != nil {
				return fail(fmt.Errorf("systems.%s.methods.%s: %w", system, method, err))
			}
		}
	}

	if err := registry.SetDefaultPools(defaults); err != nil {
		return fail(err)
	}
	if doc.FallbackPool != "" {
		if err := registry.SetFallbackPool(doc.FallbackPool); err != nil {
			return fail(err)
		}
	}
	if doc.FallbackTimeout != nil {
		if err := routes.SetFallbackTimeOut(*doc.FallbackTimeout); err != nil {
			return fail(err)
		}
	}

	if err := registry.Configure(routes); err != nil {
		return fail(err)
	}

	var hooks []core.PreDispatchHook
	if len(limiters) > 0 {
		hooks = append(hooks, core.RateLimitHook(limiters))
	}
	hooks = append(hooks, opts.PreDispatchHooks...)

	d, err := core.NewDispatcher(registry, core.DispatcherConfig{
		Logger:           opts.Logger,
		Metrics:          opts.Metrics,
		Clock:            opts.Clock,
		PreDispatchHooks: hooks,
		CompletionHooks:  opts.CompletionHooks,
		CallbackRunner:   opts.CallbackRunner,
		HistoryCapacity:  opts.HistoryCapacity,
	})
	if err != nil {
		_ = registry.Shutdown(context.Background())
		return nil, err
	}
	opts.Logger.Info("dispatcher built from configuration",
		core.F("pools", len(doc.Pools)), core.F("systems", len(doc.Systems)), core.F("rateLimited", len(limiters)))
	return d, nil
}
