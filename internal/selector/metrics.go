package selector

import "github.com/prometheus/client_golang/prometheus"

var selectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "synapse",
		Subsystem: "selector",
		Name:      "selections_total",
		Help:      "Model selections by model id",
	},
	[]string{"model_id"},
)

func init() {
	prometheus.MustRegister(selectionsTotal)
}
