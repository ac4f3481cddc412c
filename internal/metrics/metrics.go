// Package metrics owns the prometheus collectors exported by unimart.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "unimart"

// Lookup results.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
	ResultOK    = "ok"
)

// Cache groups the cache collectors. A nil *Cache records nothing.
type Cache struct {
	lookups     *prometheus.CounterVec
	writes      *prometheus.CounterVec
	invalidated prometheus.Counter
	storeUp     prometheus.Gauge
}

// NewRegistry returns a registry preloaded with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewCache registers the cache collectors on reg.
func NewCache(reg prometheus.Registerer) *Cache {
	m := &Cache{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by entity kind and result.",
		}, []string{"kind", "result"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Cache writes by entity kind and result.",
		}, []string{"kind", "result"}),
		invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidated_keys_total",
			Help:      "Keys removed by pattern invalidation.",
		}),
		storeUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "store_up",
			Help:      "1 when the last cache store ping succeeded.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.lookups, m.writes, m.invalidated, m.storeUp)
	}
	return m
}

// Lookup counts one read of the given kind.
func (m *Cache) Lookup(kind, result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(kind, result).Inc()
}

// Write counts one write of the given kind.
func (m *Cache) Write(kind, result string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(kind, result).Inc()
}

// Invalidated adds n removed keys.
func (m *Cache) Invalidated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidated.Add(float64(n))
}

// StoreUp records the outcome of a health probe.
func (m *Cache) StoreUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.storeUp.Set(1)
		return
	}
	m.storeUp.Set(0)
}

// Handler exposes reg in the prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
