package callrunner

import (
	"github.com/Swind/go-call-runner/config"
	"github.com/Swind/go-call-runner/core"
)

// Re-export core types for convenience
type (
	TimeOut            = core.TimeOut
	Status             = core.Status
	RouteKey           = core.RouteKey
	RouteConfiguration = core.RouteConfiguration
	RouteTable         = core.RouteTable
	RouteOption        = core.RouteOption
	PoolConfig         = core.PoolConfig
	WorkerPool         = core.WorkerPool
	PoolRegistry       = core.PoolRegistry
	Dispatcher         = core.Dispatcher
	Invoker            = core.Invoker
	InvokerFunc        = core.InvokerFunc
	Aborter            = core.Aborter
	RequestStatistic   = core.RequestStatistic
	QueueStatistic     = core.QueueStatistic
	PreDispatchHook    = core.PreDispatchHook
	CompletionHook     = core.CompletionHook
	Completion         = core.Completion
	RequestInfo        = core.RequestInfo
	Logger             = core.Logger
	Metrics            = core.Metrics

	// Options configures the dispatcher built by New and NewFromFile.
	Options = config.BuildOptions
)

// Generic aliases
type (
	Endpoint[T any]          = core.Endpoint[T]
	Request[T any]           = core.Request[T]
	Response[T any]          = core.Response[T]
	Converter[T any]         = core.Converter[T]
	ConverterFunc[T any]     = core.ConverterFunc[T]
	JSONConverter[T any]     = core.JSONConverter[T]
	YAMLConverter[T any]     = core.YAMLConverter[T]
	IdentityConverter[T any] = core.IdentityConverter[T]
)

// Re-export status constants
const (
	StatusPending        = core.StatusPending
	StatusSuccess        = core.StatusSuccess
	StatusTimeout        = core.StatusTimeout
	StatusBackendFailure = core.StatusBackendFailure
	StatusRejected       = core.StatusRejected
)

// Re-export constructors and sentinel errors
var (
	Seconds      = core.Seconds
	Milliseconds = core.Milliseconds
	ParseTimeOut = core.ParseTimeOut
	WithPool     = core.WithPool
	WithTimeOut  = core.WithTimeOut

	ErrRejected     = core.ErrRejected
	ErrPoolShutdown = core.ErrPoolShutdown
	ErrTimeout      = core.ErrTimeout
	ErrRateLimited  = core.ErrRateLimited
	ErrUnknownRoute = core.ErrUnknownRoute
)
