package config

import (
	"fmt"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/ptr"

	"github.com/Swind/go-call-runner/core"
)

// validate checks the document's integrity: pool sizing, unique pool names and
// that every pool reference resolves. Errors are *core.ConfigError.
func validate(doc *Document) error {
	if len(doc.Pools) == 0 {
		return fieldError("pools", core.ErrUnknownPool, "at least one pool is required")
	}

	poolNames := sets.New[string]()
	for i, p := range doc.Pools {
		field := fmt.Sprintf("pools[%d]", i)
		if p.Name == "" {
			return fieldError(field, core.ErrInvalidPoolConfig, "is missing a name")
		}
		if poolNames.Has(p.Name) {
			return fieldError(field, core.ErrDuplicatePool, "pool name '%s' used more than once", p.Name)
		}
		poolNames.Insert(p.Name)

		if err := poolConfig(p).Validate(); err != nil {
			return &core.ConfigError{Field: field, Message: err.Error(), Err: err}
		}
	}

	if doc.FallbackPool != "" && !poolNames.Has(doc.FallbackPool) {
		return fieldError("fallbackPool", core.ErrUnknownPool, "references undefined pool '%s'", doc.FallbackPool)
	}

	for _, system := range sortedSystems(doc) {
		sys := doc.Systems[system]
		field := "systems." + system
		if system == "" || strings.Contains(system, ".") {
			return fieldError(field, core.ErrInvalidRoute, "system name must be non-empty and contain no '.'")
		}
		if sys.Pool != "" && !poolNames.Has(sys.Pool) {
			return fieldError(field+".pool", core.ErrUnknownPool, "references undefined pool '%s'", sys.Pool)
		}
		if rl := sys.RateLimit; rl != nil {
			if rl.PerSecond <= 0 {
				return fieldError(field+".rateLimit", core.ErrInvalidPoolConfig, "perSecond must be positive")
			}
			if rl.Burst < 1 {
				return fieldError(field+".rateLimit", core.ErrInvalidPoolConfig, "burst must be >= 1")
			}
		}

		for method, m := range sys.Methods {
			mfield := field + ".methods." + method
			if method == "" {
				return fieldError(mfield, core.ErrInvalidRoute, "method name is empty")
			}
			if m.Pool != "" && !poolNames.Has(m.Pool) {
				return fieldError(mfield+".pool", core.ErrUnknownPool, "references undefined pool '%s'", m.Pool)
			}
			if m.Pool == "" && sys.Pool == "" && doc.FallbackPool == "" {
				return fieldError(mfield, core.ErrUnknownPool, "no pool for the method, its system, or a fallback")
			}
		}
	}
	return nil
}

func fieldError(field string, err error, format string, args ...any) *core.ConfigError {
	return &core.ConfigError{Field: field, Message: fmt.Sprintf(format, args...), Err: err}
}

func poolConfig(p PoolSpec) core.PoolConfig {
	cfg := core.PoolConfig{
		Name:          p.Name,
		CorePoolSize:  ptr.Deref(p.CoreSize, p.MaxSize),
		MaxPoolSize:   p.MaxSize,
		QueueCapacity: ptr.Deref(p.QueueCapacity, DefaultQueueCapacity),
	}
	if p.IdleExpiry != nil {
		cfg.IdleExpiry = *p.IdleExpiry
	}
	return cfg
}

func sortedSystems(doc *Document) []string {
	names := make([]string, 0, len(doc.Systems))
	for name := range doc.Systems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
