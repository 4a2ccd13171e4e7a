package axis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var breakerTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vantage",
		Subsystem: "devices",
		Name:      "breaker_transitions_total",
		Help:      "Total device transport breaker state transitions",
	},
	[]string{"to"},
)
