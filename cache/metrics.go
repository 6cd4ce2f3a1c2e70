package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// instrumented wraps a Service with Prometheus counters labelled by region.
type instrumented struct {
	next    Service
	hits    *prometheus.CounterVec
	misses  *prometheus.CounterVec
	puts    *prometheus.CounterVec
	deletes *prometheus.CounterVec
	clears  *prometheus.CounterVec
	errors  *prometheus.CounterVec
}

// Instrument returns a Service that records hits, misses, puts, deletes,
// clears and errors per region in reg.
func Instrument(next Service, reg prometheus.Registerer) (Service, error) {
	newVec := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codex",
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, []string{"region"})
	}
	m := &instrumented{
		next:    next,
		hits:    newVec("hits_total", "Total number of cache hits"),
		misses:  newVec("misses_total", "Total number of cache misses"),
		puts:    newVec("puts_total", "Total number of cache put operations"),
		deletes: newVec("deletes_total", "Total number of cache delete operations"),
		clears:  newVec("clears_total", "Total number of region clears"),
		errors:  newVec("errors_total", "Total number of failed cache operations"),
	}
	for _, c := range []prometheus.Collector{m.hits, m.misses, m.puts, m.deletes, m.clears, m.errors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *instrumented) Get(ctx context.Context, region Region, key string) ([]byte, bool, error) {
	v, ok, err := m.next.Get(ctx, region, key)
	switch {
	case err != nil:
		m.errors.WithLabelValues(string(region)).Inc()
	case ok:
		m.hits.WithLabelValues(string(region)).Inc()
	default:
		m.misses.WithLabelValues(string(region)).Inc()
	}
	return v, ok, err
}

func (m *instrumented) Put(ctx context.Context, region Region, key string, value []byte, ttl time.Duration) error {
	err := m.next.Put(ctx, region, key, value, ttl)
	m.count(m.puts, region, err)
	return err
}

func (m *instrumented) Delete(ctx context.Context, region Region, key string) error {
	err := m.next.Delete(ctx, region, key)
	m.count(m.deletes, region, err)
	return err
}

func (m *instrumented) ClearAll(ctx context.Context, region Region) error {
	err := m.next.ClearAll(ctx, region)
	m.count(m.clears, region, err)
	return err
}

func (m *instrumented) count(c *prometheus.CounterVec, region Region, err error) {
	if err != nil {
		m.errors.WithLabelValues(string(region)).Inc()
		return
	}
	c.WithLabelValues(string(region)).Inc()
}
