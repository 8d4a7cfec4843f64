package rag

import "github.com/prometheus/client_golang/prometheus"

var correctiveActions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "synapse",
		Subsystem: "retrieval",
		Name:      "corrective_actions_total",
		Help:      "Corrective retrieval outcomes by action taken",
	},
	[]string{"action"},
)

func init() {
	prometheus.MustRegister(correctiveActions)
}
