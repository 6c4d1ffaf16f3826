package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	memoriesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marvin",
		Name:      "memories_stored_total",
		Help:      "Memories written to the vector store",
	}, []string{"type", "bypassed"})

	memoriesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marvin",
		Name:      "memories_rejected_total",
		Help:      "Memories rejected below the alignment threshold",
	}, []string{"type"})

	memoriesUnembedded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marvin",
		Name:      "memories_unembedded_total",
		Help:      "Memories written with a zero fallback vector",
	}, []string{"type"})

	alignmentFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marvin",
		Name:      "alignment_fallbacks_total",
		Help:      "Alignment checks that failed and fell back to the threshold score",
	})

	filterFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marvin",
		Name:      "memory_filter_fallbacks_total",
		Help:      "Store queries retried without a filter after the store rejected it",
	})
)
