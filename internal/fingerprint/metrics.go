package fingerprint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shipyard_fingerprint_lookups_total",
		Help: "Build fingerprint lookups by result (hit, miss, error)",
	},
	[]string{"result"},
)
