// Package config loads the declarative pool and route document and builds a
// dispatcher from it.
package config

import (
	"github.com/Swind/go-call-runner/core"
)

// Document is the root of a call-runner configuration file.
type Document struct {
	// FallbackTimeout replaces the built-in 10s fallback for routes with no
	// method or system timeout.
	FallbackTimeout *core.TimeOut `json:"fallbackTimeout,omitempty"`

	// FallbackPool serves systems that name no pool. Defaults to the only pool
	// when exactly one is declared.
	FallbackPool string `json:"fallbackPool,omitempty"`

	Pools   []PoolSpec            `json:"pools"`
	Systems map[string]SystemSpec `json:"systems,omitempty"`
}

// PoolSpec sizes one worker pool.
type PoolSpec struct {
	Name string `json:"name"`

	// CoreSize defaults to MaxSize.
	CoreSize *int `json:"coreSize,omitempty"`
	MaxSize  int  `json:"maxSize"`

	// QueueCapacity defaults to DefaultQueueCapacity. Zero is valid and means
	// hand-off only.
	QueueCapacity *int `json:"queueCapacity,omitempty"`

	IdleExpiry *core.TimeOut `json:"idleExpiry,omitempty"`
}

// SystemSpec configures every route of one backend system.
type SystemSpec struct {
	Pool      string                `json:"pool,omitempty"`
	Timeout   *core.TimeOut         `json:"timeout,omitempty"`
	RateLimit *RateLimitSpec        `json:"rateLimit,omitempty"`
	Methods   map[string]MethodSpec `json:"methods,omitempty"`
}

// MethodSpec overrides a single route.
type MethodSpec struct {
	Timeout *core.TimeOut `json:"timeout,omitempty"`
	Pool    string        `json:"pool,omitempty"`
}

// RateLimitSpec is a token bucket applied before dispatch.
type RateLimitSpec struct {
	PerSecond float64 `json:"perSecond"`
	// Burst defaults to ceil(PerSecond).
	Burst int `json:"burst,omitempty"`
}
