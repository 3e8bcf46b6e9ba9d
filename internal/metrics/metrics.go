// Package metrics holds the Prometheus collectors of vecragd.
//
// Collectors are package globals so that deep layers (transport, use cases)
// can record without plumbing. Embedding and retriever collectors are
// registered explicitly from main; HTTP collectors register themselves.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vecrag"

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

// group registers its collectors on the default registry at most once.
type group struct {
	once       sync.Once
	collectors []prometheus.Collector
}

func (g *group) register() {
	g.once.Do(func() { prometheus.MustRegister(g.collectors...) })
}
