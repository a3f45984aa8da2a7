// Package metrics holds the Prometheus collectors for pipeline runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PostsFetched counts posts returned by the search source.
	PostsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentimentcrawler_posts_fetched_total",
			Help: "Posts returned by the search source",
		},
	)

	// PostsClassified counts classified posts by sentiment label.
	PostsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentimentcrawler_posts_classified_total",
			Help: "Classified posts by sentiment label",
		},
		[]string{"label"},
	)

	// ClassificationErrors counts posts dropped because they could not be scored.
	ClassificationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentimentcrawler_classification_errors_total",
			Help: "Posts dropped because the scorer failed",
		},
	)

	// FetchFailures counts failed searches by status code ("error" when no
	// response was received).
	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentimentcrawler_fetch_failures_total",
			Help: "Failed search requests by status code",
		},
		[]string{"status"},
	)

	// RunDuration tracks pipeline run latency in seconds by outcome.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentimentcrawler_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)
)
