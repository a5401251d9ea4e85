package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Invoker performs one outbound call and returns its raw payload.
type Invoker interface {
	Invoke(ctx context.Context) (any, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context) (any, error)

func (f InvokerFunc) Invoke(ctx context.Context) (any, error) { return f(ctx) }

// Aborter is implemented by invokers that can stop in-flight I/O. Abort is
// called at most once per request and may arrive after the call returned.
type Aborter interface {
	Abort()
}

// Endpoint binds a registered route to a conversion strategy; it is the
// prototype requests are built from.
type Endpoint[T any] struct {
	dispatcher *Dispatcher
	route      RouteKey
	converter  Converter[T]
}

// NewEndpoint returns an endpoint for a route registered in the dispatcher's
// route table.
func NewEndpoint[T any](d *Dispatcher, route RouteKey, converter Converter[T]) (*Endpoint[T], error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil dispatcher", ErrNotConfigured)
	}
	if converter == nil {
		return nil, fmt.Errorf("%w: nil converter for %s", ErrConversion, route)
	}
	if _, ok := d.routes.Lookup(route); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, route)
	}
	return &Endpoint[T]{dispatcher: d, route: route, converter: converter}, nil
}

// Route returns the endpoint's route key.
func (e *Endpoint[T]) Route() RouteKey { return e.route }

// Configuration returns the resolved route configuration.
func (e *Endpoint[T]) Configuration() RouteConfiguration {
	return e.dispatcher.routes.Resolve(e.route)
}

// NewRequest builds a request that calls invoker.
func (e *Endpoint[T]) NewRequest(invoker Invoker) *Request[T] {
	stats := NewRequestStatistic(e.dispatcher.clock)
	return &Request[T]{
		requestState: requestState{
			id:      NewRequestID(),
			route:   e.route,
			invoker: invoker,
			stats:   stats,
		},
		dispatcher: e.dispatcher,
		converter:  e.converter,
		response:   newResponse[T](stats),
	}
}

// Call dispatches invoker synchronously.
func (e *Endpoint[T]) Call(ctx context.Context, invoker Invoker) *Response[T] {
	return e.NewRequest(invoker).Dispatch(ctx)
}

// Go dispatches invoker asynchronously; callback runs once the response completes.
func (e *Endpoint[T]) Go(ctx context.Context, invoker Invoker, callback func(*Response[T])) *Response[T] {
	return e.NewRequest(invoker).DispatchAsync(ctx, callback)
}

// requestState is the untyped part of a request the dispatcher works with.
type requestState struct {
	id      string
	route   RouteKey
	invoker Invoker
	stats   *RequestStatistic

	// set by the dispatcher before the request is shared with other goroutines
	timeout  TimeOut
	pool     string
	ctx      context.Context
	cancel   context.CancelFunc
	deadline *Deadline
	callback func()

	dispatched atomic.Bool
	abortOnce  sync.Once
	aborted    atomic.Bool
}

func (s *requestState) state() *requestState { return s }

func (s *requestState) info() RequestInfo {
	return RequestInfo{ID: s.id, Route: s.route, Pool: s.pool, TimeOut: s.timeout}
}

// abort cancels the call context and the invoker's in-flight I/O, once.
func (s *requestState) abort() {
	s.abortOnce.Do(func() {
		s.aborted.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
		if a, ok := s.invoker.(Aborter); ok {
			a.Abort()
		}
	})
}

// Request is one outbound call. It owns exactly one Response and one
// RequestStatistic and may be dispatched once.
type Request[T any] struct {
	requestState
	dispatcher *Dispatcher
	converter  Converter[T]
	response   *Response[T]
}

// ID returns the request id.
func (r *Request[T]) ID() string { return r.id }

// Route returns the request's route key.
func (r *Request[T]) Route() RouteKey { return r.route }

// TimeOut returns the enforced timeout; zero until dispatched.
func (r *Request[T]) TimeOut() TimeOut { return r.timeout }

// Response returns the request's response container.
func (r *Request[T]) Response() *Response[T] { return r.response }

// Abort stops the in-flight call. The response still completes through the
// normal path, typically with StatusBackendFailure.
func (r *Request[T]) Abort() { r.abort() }

// Aborted reports whether the abort handle ran.
func (r *Request[T]) Aborted() bool { return r.aborted.Load() }

// Dispatch submits the request and blocks until the response is completed by
// the worker, the watchdog, or a rejection, and its completion hooks ran.
func (r *Request[T]) Dispatch(ctx context.Context) *Response[T] {
	r.dispatcher.dispatch(ctx, r)
	<-r.response.Done()
	return r.response
}

// DispatchAsync submits the request and returns immediately. callback (may be
// nil) receives the response once it is completed.
func (r *Request[T]) DispatchAsync(ctx context.Context, callback func(*Response[T])) *Response[T] {
	if callback != nil {
		r.callback = func() { callback(r.response) }
	}
	r.dispatcher.dispatch(ctx, r)
	return r.response
}

// execute runs the call and conversion on a worker and tries to complete the
// response. It reports whether this path won the completion.
func (r *Request[T]) execute(ctx context.Context) bool {
	var value T
	status, err := StatusSuccess, error(nil)

	func() {
		defer func() {
			if p := recover(); p != nil {
				status = StatusBackendFailure
				err = &BackendError{Route: r.route, Phase: "panic", Err: fmt.Errorf("%v", p)}
			}
		}()

		r.stats.Mark(PhaseCallStart)
		raw, callErr := r.invoker.Invoke(ctx)
		r.stats.Mark(PhaseCallEnd)
		if callErr != nil {
			status = StatusBackendFailure
			err = &BackendError{Route: r.route, Phase: "call", Err: callErr}
			return
		}
		if r.response.claimed() {
			// Timed out during the call, the payload is dropped unconverted.
			return
		}

		r.stats.Mark(PhaseConversionStart)
		v, convErr := r.converter.Convert(raw)
		r.stats.Mark(PhaseConversionEnd)
		if convErr != nil {
			status = StatusBackendFailure
			err = &BackendError{Route: r.route, Phase: "conversion", Err: convErr}
			return
		}
		value = v
	}()

	return r.response.tryComplete(status, value, err)
}

func (r *Request[T]) fail(status Status, err error) bool {
	var zero T
	return r.response.tryComplete(status, zero, err)
}

func (r *Request[T]) done() bool { return r.response.claimed() }

func (r *Request[T]) markLogged() bool { return r.response.markLogged() }

func (r *Request[T]) publish() { r.response.publish() }

// result reads the claimed outcome before it is published.
func (r *Request[T]) result() (Status, error) {
	return r.response.status, r.response.err
}

// dispatchable is the dispatcher's view of a Request[T].
type dispatchable interface {
	state() *requestState
	execute(ctx context.Context) bool
	fail(status Status, err error) bool
	done() bool
	markLogged() bool
	publish()
	result() (Status, error)
}
