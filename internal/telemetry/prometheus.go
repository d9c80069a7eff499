package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus exports Metrics updates as prometheus collectors. Keys passed to
// Add become counters and keys passed to Store become gauges; collectors are
// registered lazily on first use.
type Prometheus struct {
	mu        sync.Mutex
	factory   promauto.Factory
	namespace string
	counters  map[string]prometheus.Counter
	gauges    map[string]prometheus.Gauge
}

// NewPrometheus registers collectors against reg under namespace.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	return &Prometheus{
		factory:   promauto.With(reg),
		namespace: namespace,
		counters:  make(map[string]prometheus.Counter),
		gauges:    make(map[string]prometheus.Gauge),
	}
}

func (p *Prometheus) Add(key string, delta uint64) {
	if p == nil || key == "" {
		return
	}
	p.mu.Lock()
	counter, ok := p.counters[key]
	if !ok {
		counter = p.factory.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      key,
			Help:      "Engine counter " + key + ".",
		})
		p.counters[key] = counter
	}
	p.mu.Unlock()
	counter.Add(float64(delta))
}

func (p *Prometheus) Store(key string, value uint64) {
	if p == nil || key == "" {
		return
	}
	p.mu.Lock()
	gauge, ok := p.gauges[key]
	if !ok {
		gauge = p.factory.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      key,
			Help:      "Engine gauge " + key + ".",
		})
		p.gauges[key] = gauge
	}
	p.mu.Unlock()
	gauge.Set(float64(value))
}
