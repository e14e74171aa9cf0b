// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_predictions_total",
			Help: "Total number of successful churn predictions by label",
		},
		[]string{"label", "source"},
	)

	PredictionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_prediction_errors_total",
			Help: "Total number of failed churn predictions by error code",
		},
		[]string{"code", "source"},
	)

	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "churn_inference_duration_seconds",
			Help:    "Duration of inference stages in seconds",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		},
		[]string{"stage"},
	)

	UnseenColumns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_unseen_columns_total",
			Help: "Encoded columns dropped because the training schema has no slot for them",
		},
		[]string{"field"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_cache_requests_total",
			Help: "Prediction cache lookups by result",
		},
		[]string{"result"},
	)

	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_sink_failures_total",
			Help: "Prediction events a sink failed to record",
		},
		[]string{"sink"},
	)
)
