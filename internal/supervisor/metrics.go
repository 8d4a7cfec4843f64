package supervisor

import "github.com/prometheus/client_golang/prometheus"

var stateTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "synapse",
		Subsystem: "supervisor",
		Name:      "state_transitions_total",
		Help:      "Model process state transitions by destination state",
	},
	[]string{"state"},
)

func init() {
	prometheus.MustRegister(stateTransitions)
}
