package config

import (
	"math"

	"k8s.io/utils/ptr"
)

// DefaultQueueCapacity applies to pools that do not set queueCapacity.
const DefaultQueueCapacity = 100

// setDefaults fills in optional fields:
//  1. coreSize defaults to maxSize, queueCapacity to DefaultQueueCapacity
//  2. a lone pool becomes the fallback pool
//  3. rate limit bursts default to the per-second rate, rounded up
func setDefaults(doc *Document) {
	for i := range doc.Pools {
		p := &doc.Pools[i]
		if p.CoreSize == nil {
			p.CoreSize = ptr.To(p.MaxSize)
		}
		if p.QueueCapacity == nil {
			p.QueueCapacity = ptr.To(DefaultQueueCapacity)
		}
	}

	if doc.FallbackPool == "" && len(doc.Pools) == 1 {
		doc.FallbackPool = doc.Pools[0].Name
	}

	for name, sys := range doc.Systems {
		if sys.RateLimit != nil && sys.RateLimit.Burst == 0 {
			sys.RateLimit.Burst = int(math.Max(1, math.Ceil(sys.RateLimit.PerSecond)))
			doc.Systems[name] = sys
		}
	}
}
