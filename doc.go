// Package callrunner dispatches outbound backend calls onto bounded, named
// worker pools and completes each call with exactly one outcome.
//
// Every call belongs to a route ("system.method"). Routes resolve to a pool
// (route pool, then the system's default pool, then a fallback pool) and to a
// timeout (method timeout, then system timeout, then a fallback of 10 seconds).
// A dispatched request finishes in one of four statuses:
//
//	SUCCESS          the call and its conversion succeeded
//	TIMEOUT          the watchdog fired first; the call was aborted once
//	BACKEND_FAILURE  the call or the conversion returned an error
//	REJECTED         the pool was saturated or shut down, or a hook refused it
//
// Rejection and timeout are statuses on the Response, never panics or errors
// returned from Dispatch.
//
// # Quick Start
//
// Describe pools and per-system defaults in a YAML document:
//
//	pools:
//	  - {name: shared, coreSize: 4, maxSize: 16, queueCapacity: 256}
//	systems:
//	  billing:
//	    timeout: 15s
//	    methods:
//	      charge: {timeout: 5s}
//
// Register the routes your code calls, build the dispatcher and call through
// typed endpoints:
//
//	routes := callrunner.NewRouteTable()
//	_ = callrunner.Register(routes, "billing.charge")
//
//	d, err := callrunner.NewFromFile("callrunner.yaml", callrunner.Options{Routes: routes})
//	if err != nil {
//		log.Fatal(err) // configuration errors are fatal at startup
//	}
//	defer d.Shutdown(context.Background())
//
//	charge, _ := callrunner.NewEndpoint(d, "billing.charge", callrunner.JSONConverter[Receipt]{})
//	resp := charge.Call(ctx, httpcall.New(client, buildChargeRequest))
//	if receipt, ok := resp.Value(); ok {
//		// ...
//	}
//
// # Asynchronous calls
//
// Endpoint.Go returns immediately; the callback runs once with the completed
// response, on Options.CallbackRunner when one is set.
//
// # Observability
//
// Every response carries a RequestStatistic with queue, call, conversion and
// callback durations plus the pool's QueueStatistic at completion. Completion
// hooks observe each request exactly once; see observability/prometheus and
// observability/otelhooks for ready-made exporters.
package callrunner
