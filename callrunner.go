package callrunner

import (
	"github.com/Swind/go-call-runner/config"
	"github.com/Swind/go-call-runner/core"
)

// New loads a YAML configuration document and builds a dispatcher from it.
// Routes registered in opts.Routes are validated against the document; any
// error should abort startup.
func New(document []byte, opts Options) (*Dispatcher, error) {
	doc, err := config.Load(document)
	if err != nil {
		return nil, err
	}
	return doc.Build(opts)
}

// NewFromFile is New reading the document from path.
func NewFromFile(path string, opts Options) (*Dispatcher, error) {
	doc, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return doc.Build(opts)
}

// NewRouteTable returns an empty route table for code-registered routes.
func NewRouteTable() *RouteTable {
	return core.NewRouteTable()
}

// Register adds a "system.method" route to routes.
func Register(routes *RouteTable, route string, opts ...RouteOption) error {
	key, err := core.ParseRouteKey(route)
	if err != nil {
		return err
	}
	return routes.Register(key, opts...)
}

// NewEndpoint returns a typed endpoint for a registered "system.method" route.
func NewEndpoint[T any](d *Dispatcher, route string, converter Converter[T]) (*Endpoint[T], error) {
	key, err := core.ParseRouteKey(route)
	if err != nil {
		return nil, err
	}
	return core.NewEndpoint(d, key, converter)
}
