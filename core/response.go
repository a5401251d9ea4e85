package core

import (
	"context"
	"fmt"
	"sync/atomic"
)

const (
	responseOpen int32 = iota
	responseCompleting
	responseDone
)

// Response is a single-assignment result container.
//
// Exactly one completion wins: the dispatcher's worker and watchdog race through
// tryComplete and the loser is dropped, while a second explicit Complete is a
// programming error and panics. The value is present iff the status is
// StatusSuccess.
//
// A dispatched response becomes visible (Done closed, Status no longer
// pending) only after its statistics are finalized and completion hooks ran.
type Response[T any] struct {
	state     atomic.Int32
	done      chan struct{}
	published atomic.Bool
	logged    atomic.Bool

	// written once before done is closed
	status Status
	value  T
	err    error

	stats *RequestStatistic
}

func newResponse[T any](stats *RequestStatistic) *Response[T] {
	return &Response[T]{done: make(chan struct{}), stats: stats}
}

// Complete assigns the result. It panics with ErrAlreadyCompleted if the
// response was already completed, or if status is not terminal.
func (r *Response[T]) Complete(status Status, value T, err error) {
	if !status.IsTerminal() {
		panic(fmt.Errorf("callrunner: cannot complete response with status %s", status))
	}
	if !r.tryComplete(status, value, err) {
		panic(fmt.Errorf("%w: status %s", ErrAlreadyCompleted, r.status))
	}
	r.publish()
}

// tryComplete claims the response; false means another path already won.
func (r *Response[T]) tryComplete(status Status, value T, err error) bool {
	if !r.state.CompareAndSwap(responseOpen, responseCompleting) {
		return false
	}
	r.status = status
	if status == StatusSuccess {
		r.value = value
		r.err = nil
	} else {
		r.err = err
	}
	if r.stats != nil {
		r.stats.Mark(PhaseCompleted)
	}
	r.state.Store(responseDone)
	return true
}

// publish releases waiters. Only the winner of tryComplete calls it.
func (r *Response[T]) publish() {
	if r.published.CompareAndSwap(false, true) {
		close(r.done)
	}
}

// claimed reports whether a completion already won, published or not.
func (r *Response[T]) claimed() bool { return r.state.Load() != responseOpen }

// markLogged flips the logged flag; only the first caller gets true.
func (r *Response[T]) markLogged() bool {
	return r.logged.CompareAndSwap(false, true)
}

// Logged reports whether completion hooks already ran for this response.
func (r *Response[T]) Logged() bool { return r.logged.Load() }

// Done is closed once the response is completed and finalized.
func (r *Response[T]) Done() <-chan struct{} { return r.done }

// IsDone reports whether the response is completed and finalized.
func (r *Response[T]) IsDone() bool { return r.published.Load() }

// Wait blocks until the response is completed or ctx ends.
func (r *Response[T]) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the terminal status, or StatusPending.
func (r *Response[T]) Status() Status {
	if !r.IsDone() {
		return StatusPending
	}
	return r.status
}

// Value returns the converted value; ok is true only for StatusSuccess.
func (r *Response[T]) Value() (T, bool) {
	var zero T
	if !r.IsDone() || r.status != StatusSuccess {
		return zero, false
	}
	return r.value, true
}

// Err returns the failure cause for non-success statuses.
func (r *Response[T]) Err() error {
	if !r.IsDone() {
		return nil
	}
	return r.err
}

// Statistic returns the request's timing record.
func (r *Response[T]) Statistic() *RequestStatistic { return r.stats }
