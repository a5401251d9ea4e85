package prometheus

import (
	"errors"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"
)

// registrar creates and registers collectors under one namespace and keeps
// the first registration error. Collectors already registered with an equal
// descriptor are reused, so two exporters on one registry share series.
type registrar struct {
	reg       prom.Registerer
	namespace string
	buckets   []float64
	err       error
}

func (r *registrar) histogram(name, help string, labels ...string) *prom.HistogramVec {
	return register(r, prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
		Buckets:   r.buckets,
	}, labels))
}

func (r *registrar) counter(name, help string, labels ...string) *prom.CounterVec {
	return register(r, prom.NewCounterVec(prom.CounterOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
	}, labels))
}

func (r *registrar) gauge(name, help string, labels ...string) *prom.GaugeVec {
	return register(r, prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
	}, labels))
}

func register[T prom.Collector](r *registrar, collector T) T {
	if r.err != nil {
		return collector
	}
	collector, r.err = registerCollector(r.reg, collector)
	return collector
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
