package embedding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var embedCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "marvin",
	Name:      "embed_calls_total",
	Help:      "Embedding lookups by result (ok, cached, fallback)",
}, []string{"result"})
