// Package metrics holds the Prometheus instruments for the registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scored registry.
type Metrics struct {
	// Adds counts insertion attempts by outcome: inserted, duplicate, invalid.
	Adds *prometheus.CounterVec

	// Samples counts selections by branch taken: max, fallback, empty.
	Samples *prometheus.CounterVec

	// Penalties counts penalize calls by outcome: decremented, removed.
	Penalties *prometheus.CounterVec

	// Promotions counts score resets to the maximum.
	Promotions prometheus.Counter

	// PoolSize tracks the number of endpoints currently registered.
	PoolSize prometheus.Gauge
}

// New creates and registers all registry metrics on the default registerer.
func New() *Metrics {
	return &Metrics{
		Adds: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyrank_adds_total",
				Help: "Endpoint insertion attempts by outcome",
			},
			[]string{"outcome"}, // inserted, duplicate, invalid
		),
		Samples: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyrank_samples_total",
				Help: "Endpoint selections by branch taken",
			},
			[]string{"branch"}, // max, fallback, empty
		),
		Penalties: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyrank_penalties_total",
				Help: "Penalize calls by outcome",
			},
			[]string{"outcome"}, // decremented, removed
		),
		Promotions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "proxyrank_promotions_total",
				Help: "Score resets to the maximum",
			},
		),
		PoolSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxyrank_pool_size",
				Help: "Number of endpoints currently registered",
			},
		),
	}
}
