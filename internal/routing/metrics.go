package routing

import "github.com/prometheus/client_golang/prometheus"

var routingDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "synapse",
		Subsystem: "routing",
		Name:      "decisions_total",
		Help:      "Routing decisions by selected tier",
	},
	[]string{"tier"},
)

func init() {
	prometheus.MustRegister(routingDecisions)
}
