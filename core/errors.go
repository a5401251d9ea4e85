package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Rejection and timeout surface as Response statuses; these values
// are carried in Response.Err so callers can match them with errors.Is.
var (
	ErrRejected          = errors.New("callrunner: task rejected, pool saturated")
	ErrPoolShutdown      = errors.New("callrunner: pool is shut down")
	ErrTimeout           = errors.New("callrunner: request timed out")
	ErrRateLimited       = errors.New("callrunner: rate limit exceeded")
	ErrNilTask           = errors.New("callrunner: nil task")
	ErrInvalidTimeOut    = errors.New("callrunner: invalid timeout")
	ErrInvalidPoolConfig = errors.New("callrunner: invalid pool config")
	ErrDuplicatePool     = errors.New("callrunner: duplicate pool name")
	ErrUnknownPool       = errors.New("callrunner: unknown pool")
	ErrDuplicateRoute    = errors.New("callrunner: duplicate route")
	ErrUnknownRoute      = errors.New("callrunner: unknown route")
	ErrInvalidRoute      = errors.New("callrunner: invalid route key")
	ErrFrozen            = errors.New("callrunner: configuration is frozen")
	ErrNotConfigured     = errors.New("callrunner: registry not configured")
	ErrAlreadyCompleted  = errors.New("callrunner: response already completed")
	ErrAlreadyDispatched = errors.New("callrunner: request already dispatched")
	ErrConversion        = errors.New("callrunner: payload conversion failed")
)

// ConfigError describes a wiring problem detected at startup.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func newConfigError(field string, err error, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...), Err: err}
}

// BackendError wraps a collaborator or conversion failure with the route it came from.
type BackendError struct {
	Route RouteKey
	Phase string
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Route, e.Phase, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
