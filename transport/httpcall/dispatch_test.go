package httpcall_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-call-runner/core"
	"github.com/Swind/go-call-runner/transport/httpcall"
)

func newDispatcher(t *testing.T, timeout core.TimeOut) (*core.Dispatcher, core.RouteKey) {
	t.Helper()
	route := core.MustRouteKey("catalog.lookup")
	routes := core.NewRouteTable()
	require.NoError(t, routes.Register(route, core.WithTimeOut(timeout)))

	pool, err := core.NewWorkerPool(core.PoolConfig{Name: "catalog", CorePoolSize: 1, MaxPoolSize: 2, QueueCapacity: 2})
	require.NoError(t, err)
	registry := core.NewPoolRegistry(nil)
	require.NoError(t, registry.Add(pool))
	require.NoError(t, registry.SetFallbackPool("catalog"))
	require.NoError(t, registry.Configure(routes))

	d, err := core.NewDispatcher(registry, core.DispatcherConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })
	return d, route
}

type item struct {
	SKU   string  `json:"sku"`
	Price float64 `json:"price"`
}

func TestDispatch_HTTPSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sku":"A-1","price":9.5}`))
	}))
	defer srv.Close()

	d, route := newDispatcher(t, core.Seconds(2))
	endpoint, err := core.NewEndpoint[item](d, route, core.JSONConverter[item]{})
	require.NoError(t, err)

	resp := endpoint.Call(context.Background(), httpcall.Get(srv.Client(), srv.URL))
	require.Equal(t, core.StatusSuccess, resp.Status(), "err = %v", resp.Err())
	v, ok := resp.Value()
	require.True(t, ok)
	assert.Equal(t, item{SKU: "A-1", Price: 9.5}, v)
}

func TestDispatch_HTTPTimeoutAbortsRequest(t *testing.T) {
	cancelled := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(cancelled)
	}))
	defer srv.Close()

	d, route := newDispatcher(t, core.Milliseconds(50))
	endpoint, err := core.NewEndpoint[item](d, route, core.JSONConverter[item]{})
	require.NoError(t, err)

	resp := endpoint.Call(context.Background(), httpcall.Get(srv.Client(), srv.URL))
	assert.Equal(t, core.StatusTimeout, resp.Status())
	assert.ErrorIs(t, resp.Err(), core.ErrTimeout)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the request cancelled")
	}
}

func TestDispatch_HTTPStatusIsBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d, route := newDispatcher(t, core.Seconds(2))
	endpoint, err := core.NewEndpoint[item](d, route, core.JSONConverter[item]{})
	require.NoError(t, err)

	resp := endpoint.Call(context.Background(), httpcall.Get(srv.Client(), srv.URL))
	assert.Equal(t, core.StatusBackendFailure, resp.Status())

	var statusErr *httpcall.StatusError
	require.ErrorAs(t, resp.Err(), &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}
