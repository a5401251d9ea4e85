package core

import (
	"context"
	"errors"
	"testing"
)

func mustPool(t *testing.T, name string, core, max, queue int) *WorkerPool {
	t.Helper()
	p, err := NewWorkerPool(PoolConfig{Name: name, CorePoolSize: core, MaxPoolSize: max, QueueCapacity: queue})
	if err != nil {
		t.Fatalf("NewWorkerPool(%s) error = %v", name, err)
	}
	t.Cleanup(p.Stop)
	return p
}

// TestPoolRegistry_Resolve verifies route pool, then system default, then fallback
// Given: A registry with three pools, a system default and a fallback
// When: Routes with and without explicit pools are resolved
// Then: Each route lands on the expected pool
func TestPoolRegistry_Resolve(t *testing.T) {
	// Arrange
	r := NewPoolRegistry(nil)
	for _, name := range []string{"billing", "shared", "dedicated"} {
		if err := r.Add(mustPool(t, name, 1, 1, 1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.SetDefaultPools(map[string]string{"billing": "billing"}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetFallbackPool("shared"); err != nil {
		t.Fatal(err)
	}

	rt := NewRouteTable()
	_ = rt.Register(MustRouteKey("billing.charge"))
	_ = rt.Register(MustRouteKey("billing.export"), WithPool("dedicated"))
	_ = rt.Register(MustRouteKey("crm.lookup"))

	// Act
	if err := r.Configure(rt); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	// Assert
	tests := map[string]string{
		"billing.charge": "billing",
		"billing.export": "dedicated",
		"crm.lookup":     "shared",
		"other.call":     "shared",
	}
	for route, want := range tests {
		p, err := r.Resolve(MustRouteKey(route))
		if err != nil {
			t.Errorf("Resolve(%s) error = %v", route, err)
			continue
		}
		if p.Name() != want {
			t.Errorf("Resolve(%s) = %s, want %s", route, p.Name(), want)
		}
	}
}

func TestPoolRegistry_ConfigureErrors(t *testing.T) {
	t.Run("no pools", func(t *testing.T) {
		r := NewPoolRegistry(nil)
		err := r.Configure(NewRouteTable())
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("Configure() error = %v, want *ConfigError", err)
		}
	})

	t.Run("unknown route pool", func(t *testing.T) {
		r := NewPoolRegistry(nil)
		_ = r.Add(mustPool(t, "a", 1, 1, 0))
		rt := NewRouteTable()
		_ = rt.Register(MustRouteKey("x.y"), WithPool("missing"))
		err := r.Configure(rt)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || !errors.Is(err, ErrUnknownPool) {
			t.Fatalf("Configure() error = %v, want ConfigError wrapping ErrUnknownPool", err)
		}
		if cfgErr.Field != "routes.x.y" {
			t.Errorf("Field = %q, want routes.x.y", cfgErr.Field)
		}
	})

	t.Run("route without any pool", func(t *testing.T) {
		r := NewPoolRegistry(nil)
		_ = r.Add(mustPool(t, "a", 1, 1, 0))
		rt := NewRouteTable()
		_ = rt.Register(MustRouteKey("x.y"))
		if err := r.Configure(rt); !errors.Is(err, ErrUnknownPool) {
			t.Fatalf("Configure() error = %v, want ErrUnknownPool", err)
		}
	})

	t.Run("configure twice", func(t *testing.T) {
		r := NewPoolRegistry(nil)
		_ = r.Add(mustPool(t, "a", 1, 1, 0))
		_ = r.SetFallbackPool("a")
		if err := r.Configure(NewRouteTable()); err != nil {
			t.Fatal(err)
		}
		if err := r.Configure(NewRouteTable()); !errors.Is(err, ErrFrozen) {
			t.Errorf("second Configure() error = %v, want ErrFrozen", err)
		}
	})
}

// TestPoolRegistry_ConfigureRetryAfterFailure verifies a failed Configure
// leaves the routes editable so the wiring can be fixed
// Given: A route with no pool and a registry without a fallback
// When: Configure fails, the route gets a pool override and Configure runs again
// Then: The second Configure succeeds and the route resolves to that pool
func TestPoolRegistry_ConfigureRetryAfterFailure(t *testing.T) {
	// Arrange
	r := NewPoolRegistry(nil)
	if err := r.Add(mustPool(t, "only", 1, 1, 1)); err != nil {
		t.Fatal(err)
	}
	rt := NewRouteTable()
	key := MustRouteKey("crm.lookup")
	if err := rt.Register(key); err != nil {
		t.Fatal(err)
	}

	// Act
	err := r.Configure(rt)
	if !errors.Is(err, ErrUnknownPool) {
		t.Fatalf("first Configure() error = %v, want ErrUnknownPool", err)
	}
	if rt.Frozen() || r.Configured() {
		t.Fatalf("Frozen() = %v, Configured() = %v after failed Configure", rt.Frozen(), r.Configured())
	}
	if err := rt.Override(key, RouteOverride{PoolName: "only"}); err != nil {
		t.Fatalf("Override after failed Configure error = %v", err)
	}

	// Assert
	if err := r.Configure(rt); err != nil {
		t.Fatalf("second Configure() error = %v", err)
	}
	p, err := r.Resolve(key)
	if err != nil || p.Name() != "only" {
		t.Errorf("Resolve(%s) = %v, %v, want pool only", key, p, err)
	}
}

func TestPoolRegistry_BuildErrors(t *testing.T) {
	r := NewPoolRegistry(nil)
	_ = r.Add(mustPool(t, "a", 1, 1, 0))

	if err := r.Add(mustPool(t, "a", 1, 1, 0)); !errors.Is(err, ErrDuplicatePool) {
		t.Errorf("duplicate Add() = %v, want ErrDuplicatePool", err)
	}
	if err := r.SetDefaultPools(map[string]string{"sys": "missing"}); !errors.Is(err, ErrUnknownPool) {
		t.Errorf("SetDefaultPools() = %v, want ErrUnknownPool", err)
	}
	if err := r.SetFallbackPool("missing"); !errors.Is(err, ErrUnknownPool) {
		t.Errorf("SetFallbackPool() = %v, want ErrUnknownPool", err)
	}
	if _, err := r.Resolve(MustRouteKey("a.b")); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Resolve before Configure = %v, want ErrNotConfigured", err)
	}

	_ = r.SetFallbackPool("a")
	_ = r.Configure(NewRouteTable())
	if err := r.Add(mustPool(t, "b", 1, 1, 0)); !errors.Is(err, ErrFrozen) {
		t.Errorf("Add after Configure = %v, want ErrFrozen", err)
	}
}

func TestPoolRegistry_StatsAndShutdown(t *testing.T) {
	r := NewPoolRegistry(nil)
	_ = r.Add(mustPool(t, "b", 1, 2, 0))
	_ = r.Add(mustPool(t, "a", 1, 1, 0))
	_ = r.SetFallbackPool("a")
	_ = r.Configure(NewRouteTable())

	stats := r.Stats()
	if len(stats) != 2 || stats[0].Name != "a" || stats[1].Name != "b" {
		t.Fatalf("Stats() = %+v, want pools a and b sorted", stats)
	}
	if stats[1].MaxPoolSize != 2 {
		t.Errorf("MaxPoolSize = %d, want 2", stats[1].MaxPoolSize)
	}

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	for _, p := range r.Pools() {
		if p.IsRunning() {
			t.Errorf("pool %s still running", p.Name())
		}
	}
}
