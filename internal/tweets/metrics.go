package tweets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marvin",
		Name:      "tweet_batches_total",
		Help:      "Tweet processing batches by status",
	}, []string{"status"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "marvin",
		Name:      "tweet_batch_duration_seconds",
		Help:      "Wall time of tweet processing batches",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	tweetOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marvin",
		Name:      "tweets_processed_total",
		Help:      "Tweet candidates by processing outcome",
	}, []string{"outcome"})
)
