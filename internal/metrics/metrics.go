// Package metrics exposes Prometheus collectors for ranking, training and ingestion.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "property_ranking_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "property_ranking_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ListingsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "property_ranking_listings_scored_total",
			Help: "Total number of listings scored, by ranking operation",
		},
		[]string{"operation"},
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "property_ranking_training_runs_total",
			Help: "Weight training runs by result (trained, skipped)",
		},
		[]string{"result"},
	)

	ModelAccuracy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "property_ranking_model_accuracy",
			Help: "Pairwise ranking accuracy of the current weights on the training samples",
		},
	)

	ScoringWeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "property_ranking_scoring_weight",
			Help: "Current scoring weight by component",
		},
		[]string{"component"},
	)

	TrainingSamples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "property_ranking_training_samples",
			Help: "Number of training samples held by the optimizer",
		},
	)

	IngestedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "property_ranking_ingested_messages_total",
			Help: "Outcome messages consumed, by result (accepted, rejected)",
		},
		[]string{"result"},
	)
)

func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordScored(operation string, n int) {
	ListingsScored.WithLabelValues(operation).Add(float64(n))
}

// RecordTraining counts a training run; accuracy is only set when trained.
func RecordTraining(trained bool, accuracy float64) {
	if !trained {
		TrainingRuns.WithLabelValues("skipped").Inc()
		return
	}
	TrainingRuns.WithLabelValues("trained").Inc()
	ModelAccuracy.Set(accuracy)
}

func SetWeights(w domain.WeightConfig) {
	ScoringWeight.WithLabelValues("compatibility").Set(w.Compatibility)
	ScoringWeight.WithLabelValues("behavior").Set(w.Behavior)
	ScoringWeight.WithLabelValues("temporal").Set(w.Temporal)
}

func SetTrainingSamples(n int) {
	TrainingSamples.Set(float64(n))
}

func RecordIngest(accepted bool) {
	if accepted {
		IngestedMessages.WithLabelValues("accepted").Inc()
		return
	}
	IngestedMessages.WithLabelValues("rejected").Inc()
}
