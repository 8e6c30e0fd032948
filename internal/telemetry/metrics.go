package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plegma_generations_total",
		Help: "Completed evolution rounds per cluster.",
	}, []string{"cluster"})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plegma_generation_duration_seconds",
		Help:    "Wall-clock duration of a full two-phase evolution round.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"cluster"})

	clusterEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plegma_cluster_events_total",
		Help: "Cluster lifecycle events by kind.",
	}, []string{"cluster", "event"})

	memoryAllocBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plegma_memory_alloc_bytes",
		Help: "Heap bytes allocated and still in use, from the last resource sample.",
	})

	goroutineCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plegma_goroutines",
		Help: "Goroutine count from the last resource sample.",
	})
)
