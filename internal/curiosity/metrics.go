package curiosity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "marvin",
	Name:      "curiosity_evaluations_total",
	Help:      "Curiosity verdicts by result (research, skip, error)",
}, []string{"result"})
