package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultFallbackTimeOut applies to routes with no method or system timeout,
// unless the route table is given an explicit fallback.
var DefaultFallbackTimeOut = Seconds(10)

// RouteKey identifies one kind of outbound call.
type RouteKey struct {
	System string
	Method string
}

// ParseRouteKey parses "system.method". The method may itself contain dots.
func ParseRouteKey(s string) (RouteKey, error) {
	system, method, ok := strings.Cut(s, ".")
	if !ok || system == "" || method == "" {
		return RouteKey{}, fmt.Errorf("%w: %q, want system.method", ErrInvalidRoute, s)
	}
	return RouteKey{System: system, Method: method}, nil
}

// MustRouteKey is ParseRouteKey that panics on malformed input.
func MustRouteKey(s string) RouteKey {
	k, err := ParseRouteKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

func (k RouteKey) String() string { return k.System + "." + k.Method }

func (k RouteKey) valid() bool { return k.System != "" && k.Method != "" }

// RouteConfiguration is the resolved configuration of one route.
type RouteConfiguration struct {
	Key            RouteKey
	PoolName       string  // empty: use the system default pool
	TimeOut        TimeOut // zero: use DefaultTimeOut
	DefaultTimeOut TimeOut // system default, or the table fallback
}

// EffectiveTimeOut applies the resolution order method → system → fallback.
func (c RouteConfiguration) EffectiveTimeOut() TimeOut {
	if !c.TimeOut.IsZero() {
		return c.TimeOut
	}
	return c.DefaultTimeOut
}

// RouteOption customizes a route at registration.
type RouteOption func(*RouteConfiguration)

// WithPool pins the route to a named pool.
func WithPool(name string) RouteOption {
	return func(c *RouteConfiguration) { c.PoolName = name }
}

// WithTimeOut sets the method-level timeout.
func WithTimeOut(t TimeOut) RouteOption {
	return func(c *RouteConfiguration) { c.TimeOut = t }
}

// RouteOverride is the declarative configuration for one method. Zero fields
// leave the registered value alone.
type RouteOverride struct {
	PoolName string
	TimeOut  TimeOut
}

// RouteTable holds every RouteConfiguration. It is built single-threaded at
// startup and frozen by PoolRegistry.Configure; after that it is read-only and
// safe for concurrent lookups.
type RouteTable struct {
	mu              sync.Mutex
	frozen          atomic.Bool
	routes          map[RouteKey]*RouteConfiguration
	overrides       map[RouteKey]RouteOverride
	systemTimeouts  map[string]TimeOut
	fallbackTimeOut TimeOut
	fallbackSet     bool
}

// NewRouteTable returns an empty table using DefaultFallbackTimeOut.
func NewRouteTable() *RouteTable {
	return &RouteTable{
		routes:          make(map[RouteKey]*RouteConfiguration),
		overrides:       make(map[RouteKey]RouteOverride),
		systemTimeouts:  make(map[string]TimeOut),
		fallbackTimeOut: DefaultFallbackTimeOut,
	}
}

// validateOptional accepts the zero TimeOut as "not configured".
func validateOptional(timeout TimeOut) error {
	if timeout.IsZero() {
		return nil
	}
	return timeout.Validate()
}

func (t *RouteTable) checkMutable() error {
	if t.frozen.Load() {
		return ErrFrozen
	}
	return nil
}

// Register declares a route owned by the caller.
func (t *RouteTable) Register(key RouteKey, opts ...RouteOption) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkMutable(); err != nil {
		return err
	}
	if !key.valid() {
		return fmt.Errorf("%w: %+v", ErrInvalidRoute, key)
	}
	if _, ok := t.routes[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRoute, key)
	}
	cfg := &RouteConfiguration{Key: key}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := validateOptional(cfg.TimeOut); err != nil {
		return fmt.Errorf("route %s: %w", key, err)
	}
	t.routes[key] = cfg
	return nil
}

// Override records declarative configuration for key. Overrides win over
// registration options; an override for an unregistered key registers it.
func (t *RouteTable) Override(key RouteKey, o RouteOverride) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkMutable(); err != nil {
		return err
	}
	if !key.valid() {
		return fmt.Errorf("%w: %+v", ErrInvalidRoute, key)
	}
	if err := validateOptional(o.TimeOut); err != nil {
		return fmt.Errorf("route %s: %w", key, err)
	}
	t.overrides[key] = o
	return nil
}

// SetSystemTimeOut sets the default timeout for every method of system.
func (t *RouteTable) SetSystemTimeOut(system string, timeout TimeOut) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkMutable(); err != nil {
		return err
	}
	if timeout.IsZero() {
		delete(t.systemTimeouts, system)
		return nil
	}
	if err := timeout.Validate(); err != nil {
		return fmt.Errorf("system %s: %w", system, err)
	}
	t.systemTimeouts[system] = timeout
	return nil
}

// SetFallbackTimeOut replaces the timeout used when neither the method nor its
// system configure one.
func (t *RouteTable) SetFallbackTimeOut(timeout TimeOut) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkMutable(); err != nil {
		return err
	}
	if timeout.IsZero() {
		return fmt.Errorf("%w: fallback timeout must be set", ErrInvalidTimeOut)
	}
	if err := timeout.Validate(); err != nil {
		return err
	}
	t.fallbackTimeOut = timeout
	t.fallbackSet = true
	return nil
}

// FallbackTimeOut returns the timeout of last resort.
func (t *RouteTable) FallbackTimeOut() TimeOut { return t.fallbackTimeOut }

// freeze merges overrides and resolves default timeouts. It returns the routes
// that ended up on the built-in fallback timeout.
func (t *RouteTable) freeze() []RouteKey {
	onFallback, _ := t.freezeIf(nil)
	return onFallback
}

// freezeIf is freeze gated by check, which sees the merged routes. When check
// fails the table is left untouched and still mutable.
func (t *RouteTable) freezeIf(check func([]RouteConfiguration) error) ([]RouteKey, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen.Load() {
		if check != nil {
			return nil, check(sortedConfigs(t.routes))
		}
		return nil, nil
	}

	merged := make(map[RouteKey]*RouteConfiguration, len(t.routes)+len(t.overrides))
	for key, cfg := range t.routes {
		c := *cfg
		merged[key] = &c
	}
	for key, o := range t.overrides {
		cfg, ok := merged[key]
		if !ok {
			cfg = &RouteConfiguration{Key: key}
			merged[key] = cfg
		}
		if o.PoolName != "" {
			cfg.PoolName = o.PoolName
		}
		if !o.TimeOut.IsZero() {
			cfg.TimeOut = o.TimeOut
		}
	}

	var onFallback []RouteKey
	for key, cfg := range merged {
		cfg.DefaultTimeOut = t.systemDefaultLocked(key.System)
		if cfg.TimeOut.IsZero() && !t.fallbackSet {
			if _, ok := t.systemTimeouts[key.System]; !ok {
				onFallback = append(onFallback, key)
			}
		}
	}

	if check != nil {
		if err := check(sortedConfigs(merged)); err != nil {
			return nil, err
		}
	}

	t.routes = merged
	t.overrides = make(map[RouteKey]RouteOverride)
	t.frozen.Store(true)
	sortKeys(onFallback)
	return onFallback, nil
}

func (t *RouteTable) systemDefaultLocked(system string) TimeOut {
	if st, ok := t.systemTimeouts[system]; ok {
		return st
	}
	return t.fallbackTimeOut
}

// Frozen reports whether the table is read-only.
func (t *RouteTable) Frozen() bool { return t.frozen.Load() }

// Lookup returns the configuration of a registered route.
func (t *RouteTable) Lookup(key RouteKey) (RouteConfiguration, bool) {
	if !t.frozen.Load() {
		t.mu.Lock()
		defer t.mu.Unlock()
	}
	cfg, ok := t.routes[key]
	if !ok {
		return RouteConfiguration{}, false
	}
	c := *cfg
	if c.DefaultTimeOut.IsZero() {
		c.DefaultTimeOut = t.systemDefaultLocked(key.System)
	}
	return c, true
}

// Resolve returns the configuration of key, deriving one from the system
// defaults when the route was never registered.
func (t *RouteTable) Resolve(key RouteKey) RouteConfiguration {
	if cfg, ok := t.Lookup(key); ok {
		return cfg
	}
	if !t.frozen.Load() {
		t.mu.Lock()
		defer t.mu.Unlock()
	}
	return RouteConfiguration{Key: key, DefaultTimeOut: t.systemDefaultLocked(key.System)}
}

// Routes returns every registered route sorted by key.
func (t *RouteTable) Routes() []RouteConfiguration {
	if !t.frozen.Load() {
		t.mu.Lock()
		defer t.mu.Unlock()
	}
	return sortedConfigs(t.routes)
}

func sortedConfigs(routes map[RouteKey]*RouteConfiguration) []RouteConfiguration {
	out := make([]RouteConfiguration, 0, len(routes))
	for _, cfg := range routes {
		out = append(out, *cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

func sortKeys(keys []RouteKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}
