package research

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	researchCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marvin",
		Name:      "research_calls_total",
		Help:      "Research operations by outcome status",
	}, []string{"status"})

	researchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marvin",
		Name:      "research_api_attempts_total",
		Help:      "HTTP attempts made against the research API, retries included",
	})

	researchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "marvin",
		Name:      "research_api_duration_seconds",
		Help:      "Wall time of research API queries, retries included",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	})

	insightsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marvin",
		Name:      "insights_extracted_total",
		Help:      "Insights extracted from research answers",
	})

	pendingResearch = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "marvin",
		Name:      "pending_research",
		Help:      "Research results awaiting approval",
	})
)
