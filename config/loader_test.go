package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/Swind/go-call-runner/core"
)

const fullConfigText = `
fallbackTimeout: 8s
fallbackPool: shared
pools:
  - name: shared
    coreSize: 2
    maxSize: 4
    queueCapacity: 16
    idleExpiry: 30s
  - name: billing
    maxSize: 2
  - name: billing-slow
    coreSize: 0
    maxSize: 1
    queueCapacity: 0
systems:
  billing:
    pool: billing
    timeout: 15s
    rateLimit:
      perSecond: 2.5
    methods:
      charge:
        timeout: 5s
        pool: billing-slow
      refund: {}
  crm:
    timeout: {amount: 250, unit: ms}
`

func TestLoad_FullDocument(t *testing.T) {
	t.Parallel()

	doc, err := Load([]byte(fullConfigText))
	require.NoError(t, err)

	want := &Document{
		FallbackTimeout: ptr.To(core.Seconds(8)),
		FallbackPool:    "shared",
		Pools: []PoolSpec{
			{Name: "shared", CoreSize: ptr.To(2), MaxSize: 4, QueueCapacity: ptr.To(16), IdleExpiry: ptr.To(core.Seconds(30))},
			{Name: "billing", CoreSize: ptr.To(2), MaxSize: 2, QueueCapacity: ptr.To(DefaultQueueCapacity)},
			{Name: "billing-slow", CoreSize: ptr.To(0), MaxSize: 1, QueueCapacity: ptr.To(0)},
		},
		Systems: map[string]SystemSpec{
			"billing": {
				Pool:      "billing",
				Timeout:   ptr.To(core.Seconds(15)),
				RateLimit: &RateLimitSpec{PerSecond: 2.5, Burst: 3},
				Methods: map[string]MethodSpec{
					"charge": {Timeout: ptr.To(core.Seconds(5)), Pool: "billing-slow"},
					"refund": {},
				},
			},
			"crm": {Timeout: ptr.To(core.Milliseconds(250))},
		},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		wantErr error
		field   string
	}{
		{
			name: "unknown field",
			text: "pools: [{name: a, maxSize: 1, workers: 3}]",
		},
		{
			name:    "no pools",
			text:    "fallbackPool: a",
			wantErr: core.ErrUnknownPool,
			field:   "pools",
		},
		{
			name:    "duplicate pool",
			text:    "pools: [{name: a, maxSize: 1}, {name: a, maxSize: 2}]",
			wantErr: core.ErrDuplicatePool,
			field:   "pools[1]",
		},
		{
			name:    "core above max",
			text:    "pools: [{name: a, coreSize: 3, maxSize: 1}]",
			wantErr: core.ErrInvalidPoolConfig,
			field:   "pools[0]",
		},
		{
			name:    "unknown system pool",
			text:    "pools: [{name: a, maxSize: 1}]\nsystems: {billing: {pool: b}}",
			wantErr: core.ErrUnknownPool,
			field:   "systems.billing.pool",
		},
		{
			name:    "unknown method pool",
			text:    "pools: [{name: a, maxSize: 1}]\nsystems: {billing: {methods: {charge: {pool: b}}}}",
			wantErr: core.ErrUnknownPool,
			field:   "systems.billing.methods.charge.pool",
		},
		{
			name:    "unknown fallback pool",
			text:    "fallbackPool: z\npools: [{name: a, maxSize: 1}]",
			wantErr: core.ErrUnknownPool,
			field:   "fallbackPool",
		},
		{
			name:    "method without any pool",
			text:    "pools: [{name: a, maxSize: 1}, {name: b, maxSize: 1}]\nsystems: {billing: {methods: {charge: {}}}}",
			wantErr: core.ErrUnknownPool,
			field:   "systems.billing.methods.charge",
		},
		{
			name:    "dotted system",
			text:    "pools: [{name: a, maxSize: 1}]\nsystems: {'bill.ing': {}}",
			wantErr: core.ErrInvalidRoute,
			field:   "systems.bill.ing",
		},
		{
			name:    "non-positive rate",
			text:    "pools: [{name: a, maxSize: 1}]\nsystems: {billing: {rateLimit: {perSecond: 0, burst: 1}}}",
			wantErr: core.ErrInvalidPoolConfig,
			field:   "systems.billing.rateLimit",
		},
		{
			name: "invalid timeout",
			text: "pools: [{name: a, maxSize: 1}]\nsystems: {billing: {timeout: 0s}}",
		},
		{
			name: "overflowing timeout",
			text: "pools: [{name: a, maxSize: 1}]\nfallbackTimeout: 9999999999999h",
		},
		{
			name: "overflowing method timeout",
			text: "pools: [{name: a, maxSize: 1}]\nsystems: {billing: {methods: {charge: {timeout: {amount: 9223372036854775807, unit: seconds}}}}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load([]byte(tt.text))
			require.Error(t, err)
			if tt.wantErr == nil {
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			var cfgErr *core.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoad_SinglePoolIsFallback(t *testing.T) {
	t.Parallel()

	doc, err := Load([]byte("pools: [{name: only, maxSize: 3}]"))
	require.NoError(t, err)
	assert.Equal(t, "only", doc.FallbackPool)
	assert.Equal(t, 3, *doc.Pools[0].CoreSize)
	assert.Nil(t, doc.FallbackTimeout)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "callrunner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfigText), 0o600))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, doc.Pools, 3)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestBuild(t *testing.T) {
	t.Parallel()

	doc, err := Load([]byte(fullConfigText))
	require.NoError(t, err)

	routes := core.NewRouteTable()
	require.NoError(t, routes.Register(core.MustRouteKey("billing.invoice")))
	require.NoError(t, routes.Register(core.MustRouteKey("billing.charge"), core.WithTimeOut(core.Seconds(60))))
	require.NoError(t, routes.Register(core.MustRouteKey("crm.lookup")))
	require.NoError(t, routes.Register(core.MustRouteKey("search.query")))

	d, err := doc.Build(BuildOptions{Routes: routes})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })

	tests := []struct {
		route   string
		pool    string
		timeout core.TimeOut
	}{
		{"billing.invoice", "billing", core.Seconds(15)},
		{"billing.charge", "billing-slow", core.Seconds(5)},
		{"billing.refund", "billing", core.Seconds(15)},
		{"crm.lookup", "shared", core.Milliseconds(250)},
		{"search.query", "shared", core.Seconds(8)},
	}
	for _, tt := range tests {
		key := core.MustRouteKey(tt.route)
		pool, err := d.Registry().Resolve(key)
		require.NoError(t, err, tt.route)
		assert.Equal(t, tt.pool, pool.Name(), tt.route)
		assert.Equal(t, tt.timeout, d.Routes().Resolve(key).EffectiveTimeOut(), tt.route)
	}

	_, ok := d.Routes().Lookup(core.MustRouteKey("billing.refund"))
	assert.True(t, ok, "method entries register their route")
}

// TestBuild_RateLimit verifies the document's limiter refuses excess requests
func TestBuild_RateLimit(t *testing.T) {
	t.Parallel()

	doc, err := Load([]byte(`
pools: [{name: p, maxSize: 2}]
systems:
  billing:
    rateLimit: {perSecond: 0.001, burst: 1}
    methods:
      charge: {}
`))
	require.NoError(t, err)
	d, err := doc.Build(BuildOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })

	e, err := core.NewEndpoint(d, core.MustRouteKey("billing.charge"), core.IdentityConverter[string]{})
	require.NoError(t, err)

	ok := core.InvokerFunc(func(ctx context.Context) (any, error) { return "ok", nil })
	first := e.Call(context.Background(), ok)
	second := e.Call(context.Background(), ok)

	assert.Equal(t, core.StatusSuccess, first.Status())
	assert.Equal(t, core.StatusRejected, second.Status())
	assert.ErrorIs(t, second.Err(), core.ErrRateLimited)
}

func TestBuild_UnpooledRouteFails(t *testing.T) {
	t.Parallel()

	doc, err := Load([]byte("pools: [{name: a, maxSize: 1}, {name: b, maxSize: 1}]"))
	require.NoError(t, err)

	routes := core.NewRouteTable()
	require.NoError(t, routes.Register(core.MustRouteKey("orphan.call")))

	_, err = doc.Build(BuildOptions{Routes: routes})
	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, core.ErrUnknownPool)
}

func TestBuild_IdleExpiryApplied(t *testing.T) {
	t.Parallel()

	doc, err := Load([]byte(fullConfigText))
	require.NoError(t, err)
	d, err := doc.Build(BuildOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })

	shared, ok := d.Registry().Pool("shared")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, shared.Config().IdleExpiry.Duration())

	billing, _ := d.Registry().Pool("billing")
	assert.Equal(t, core.DefaultIdleExpiry, billing.Config().IdleExpiry)
}
