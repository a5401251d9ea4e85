// Package httpcall adapts HTTP requests to the dispatcher's Invoker contract.
package httpcall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/Swind/go-call-runner/core"
)

// DefaultMaxBodyBytes bounds the response body read into a Result.
const DefaultMaxBodyBytes int64 = 10 << 20

var (
	// ErrAborted is returned by Invoke when the call was aborted before it started.
	ErrAborted = errors.New("httpcall: call aborted")

	// ErrBodyTooLarge is returned when a successful response body exceeds the
	// configured limit.
	ErrBodyTooLarge = errors.New("httpcall: response body exceeds limit")
)

// RequestBuilder creates the outbound request for one call. The context
// carries cancellation for the call and must be attached to the request.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Result is the raw payload handed to converters.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Bytes returns the response body.
func (r *Result) Bytes() []byte { return r.Body }

// StatusError reports a non-2xx response. The body is kept for diagnostics.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpcall: unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithMaxBodyBytes limits the response body size; larger bodies fail the call
// with ErrBodyTooLarge.
func WithMaxBodyBytes(n int64) Option {
	return func(i *Invoker) {
		if n > 0 {
			i.maxBody = n
		}
	}
}

// WithAcceptStatus treats the given status codes as successful in addition to 2xx.
func WithAcceptStatus(codes ...int) Option {
	return func(i *Invoker) {
		for _, c := range codes {
			i.accept[c] = struct{}{}
		}
	}
}

// Invoker performs one HTTP call. It implements core.Invoker and core.Aborter;
// build a new Invoker for each request.
type Invoker struct {
	client  *http.Client
	build   RequestBuilder
	maxBody int64
	accept  map[int]struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	aborted bool
}

var (
	_ core.Invoker = (*Invoker)(nil)
	_ core.Aborter = (*Invoker)(nil)
)

// New returns an invoker that sends the request produced by build through
// client. A nil client uses http.DefaultClient.
func New(client *http.Client, build RequestBuilder, opts ...Option) *Invoker {
	if client == nil {
		client = http.DefaultClient
	}
	i := &Invoker{
		client:  client,
		build:   build,
		maxBody: DefaultMaxBodyBytes,
		accept:  make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Get is a shortcut for a GET request without a body.
func Get(client *http.Client, url string, opts ...Option) *Invoker {
	return New(client, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}, opts...)
}

// Invoke sends the request and reads the response body.
func (i *Invoker) Invoke(ctx context.Context) (any, error) {
	if i.build == nil {
		return nil, errors.New("httpcall: nil request builder")
	}

	i.mu.Lock()
	if i.aborted {
		i.mu.Unlock()
		return nil, ErrAborted
	}
	ctx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.mu.Unlock()
	defer cancel()

	req, err := i.build(ctx)
	if err != nil {
		return nil, fmt.Errorf("httpcall: build request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpcall: %s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("httpcall: read body: %w", err)
	}
	tooLarge := int64(len(body)) > i.maxBody
	if tooLarge {
		body = body[:i.maxBody]
	}

	if !i.accepted(resp.StatusCode) {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	if tooLarge {
		return nil, fmt.Errorf("%w: %s %s: more than %d bytes",
			ErrBodyTooLarge, req.Method, req.URL.Redacted(), i.maxBody)
	}
	return &Result{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Abort cancels the in-flight request, or makes a later Invoke fail fast.
func (i *Invoker) Abort() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.aborted = true
	if i.cancel != nil {
		i.cancel()
	}
}

func (i *Invoker) accepted(code int) bool {
	if code >= 200 && code < 300 {
		return true
	}
	_, ok := i.accept[code]
	return ok
}
