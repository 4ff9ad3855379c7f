// Package prom exports cache and server metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skipor/kvcache"
	"github.com/skipor/kvcache/cache"
)

// Adapter implements cache.Metrics and kvcache.Metrics.
// Safe for concurrent use.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	entries   prometheus.Gauge
	bytes     prometheus.Gauge
	accepted  prometheus.Counter
	rejected  prometheus.Counter
	active    prometheus.Gauge
}

var (
	_ cache.Metrics   = (*Adapter)(nil)
	_ kvcache.Metrics = (*Adapter)(nil)
)

// New registers adapter metrics in reg. Nil reg means prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, ns string) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(sub, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help})
	}
	gauge := func(sub, name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help})
	}
	a := &Adapter{
		hits:      counter("cache", "hits_total", "Cache hits."),
		misses:    counter("cache", "misses_total", "Cache misses."),
		evictions: counter("cache", "evictions_total", "Entries evicted to fit cache size."),
		entries:   gauge("cache", "entries", "Number of resident entries."),
		bytes:     gauge("cache", "bytes", "Total size of resident keys and values."),
		accepted:  counter("server", "accepted_connections_total", "Connections given a worker."),
		rejected:  counter("server", "rejected_connections_total", "Connections closed because of worker limit."),
		active:    gauge("server", "active_connections", "Connections being served."),
	}
	reg.MustRegister(a.hits, a.misses, a.evictions, a.entries, a.bytes, a.accepted, a.rejected, a.active)
	return a
}

func (a *Adapter) Hit()   { a.hits.Inc() }
func (a *Adapter) Miss()  { a.misses.Inc() }
func (a *Adapter) Evict() { a.evictions.Inc() }

func (a *Adapter) Size(entries int, bytes int64) {
	a.entries.Set(float64(entries))
	a.bytes.Set(float64(bytes))
}

func (a *Adapter) ConnAccepted()     { a.accepted.Inc() }
func (a *Adapter) ConnRejected()     { a.rejected.Inc() }
func (a *Adapter) ActiveConns(n int) { a.active.Set(float64(n)) }
