package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipyard_operations_total",
		Help: "Lifecycle operations by operation and resulting status.",
	}, []string{"operation", "status"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shipyard_operation_duration_seconds",
		Help:    "Time spent executing lifecycle operations.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"operation"})

	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipyard_builds_total",
		Help: "Image builds by outcome (built, skipped, failed).",
	}, []string{"outcome"})

	portFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shipyard_port_discovery_fallbacks_total",
		Help: "Starts that fell back to the container port because the host port could not be discovered.",
	})

	poolActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shipyard_pool_active_operations",
		Help: "Operations currently holding a worker slot.",
	})

	poolQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shipyard_pool_queued_operations",
		Help: "Operations waiting for a worker slot.",
	})
)
