package callrunner_test

import (
	"context"
	"fmt"

	callrunner "github.com/Swind/go-call-runner"
)

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// ExampleNewEndpoint demonstrates a synchronous call through a typed endpoint.
func ExampleNewEndpoint() {
	routes := callrunner.NewRouteTable()
	_ = callrunner.Register(routes, "market.quote")

	d, err := callrunner.New([]byte(`
pools:
  - {name: market, coreSize: 2, maxSize: 4, queueCapacity: 8}
systems:
  market: {timeout: 2s}
`), callrunner.Options{Routes: routes})
	if err != nil {
		fmt.Println("config error:", err)
		return
	}
	defer d.Shutdown(context.Background())

	quotes, _ := callrunner.NewEndpoint(d, "market.quote", callrunner.JSONConverter[quote]{})
	resp := quotes.Call(context.Background(), callrunner.InvokerFunc(func(ctx context.Context) (any, error) {
		return []byte(`{"symbol":"ACME","price":12.5}`), nil
	}))

	q, _ := resp.Value()
	fmt.Println(resp.Status(), q.Symbol, q.Price)
	fmt.Println("timeout:", quotes.Configuration().EffectiveTimeOut())

	// Output:
	// SUCCESS ACME 12.5
	// timeout: 2s
}

// Example_async demonstrates an asynchronous call with a callback.
func Example_async() {
	routes := callrunner.NewRouteTable()
	_ = callrunner.Register(routes, "inventory.count")

	d, err := callrunner.New([]byte(`pools: [{name: shared, maxSize: 2}]`), callrunner.Options{Routes: routes})
	if err != nil {
		fmt.Println("config error:", err)
		return
	}
	defer d.Shutdown(context.Background())

	counts, _ := callrunner.NewEndpoint(d, "inventory.count", callrunner.IdentityConverter[int]{})

	done := make(chan struct{})
	counts.Go(context.Background(), callrunner.InvokerFunc(func(ctx context.Context) (any, error) {
		return 42, nil
	}), func(resp *callrunner.Response[int]) {
		n, _ := resp.Value()
		fmt.Println(resp.Status(), n)
		close(done)
	})
	<-done

	// Output:
	// SUCCESS 42
}
