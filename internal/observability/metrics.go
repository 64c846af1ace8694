// Package observability registers the cross-cutting Prometheus metrics for
// the recommender service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recommendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recommender",
		Subsystem: "serving",
		Name:      "request_duration_seconds",
		Help:      "End-to-end recommend duration including impression logging, labeled by scorer.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"scorer"})

	recommendItems = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommender",
		Subsystem: "serving",
		Name:      "items_served_total",
		Help:      "Number of recommendation items returned to callers.",
	})

	impressionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommender",
		Subsystem: "feedback",
		Name:      "impressions_logged_total",
		Help:      "Number of impression events committed by the serving path.",
	})

	outcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommender",
		Subsystem: "feedback",
		Name:      "outcomes_logged_total",
		Help:      "Number of outcome events persisted, labeled by kind.",
	}, []string{"kind"})

	activeScorerGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "model",
		Name:      "active_scorer",
		Help:      "1 for the currently active scoring strategy, 0 otherwise.",
	}, []string{"scorer"})

	modelVersionGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "model",
		Name:      "loaded_version",
		Help:      "Version of the loaded model artifact, 0 when running on the heuristic.",
	})

	modelTrainedAtGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "model",
		Name:      "trained_at_timestamp_seconds",
		Help:      "Training timestamp of the loaded artifact.",
	})

	schemaMismatchCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommender",
		Subsystem: "model",
		Name:      "feature_schema_mismatch_total",
		Help:      "Number of artifact loads whose feature schema diverged from the online feature set.",
	})

	modelLoadFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommender",
		Subsystem: "model",
		Name:      "load_failures_total",
		Help:      "Number of artifact load attempts that fell back to the heuristic scorer.",
	})
)

func init() {
	prometheus.MustRegister(
		recommendDuration,
		recommendItems,
		impressionsCounter,
		outcomeCounter,
		activeScorerGauge,
		modelVersionGauge,
		modelTrainedAtGauge,
		schemaMismatchCounter,
		modelLoadFailures,
	)
}

// ObserveRecommendation records one completed recommend call.
func ObserveRecommendation(d time.Duration, items int, scorer string) {
	recommendDuration.WithLabelValues(scorer).Observe(d.Seconds())
	recommendItems.Add(float64(items))
}

// RecordImpressions counts committed impression events.
func RecordImpressions(n int) {
	impressionsCounter.Add(float64(n))
}

// RecordOutcome counts one persisted outcome event.
func RecordOutcome(kind string) {
	outcomeCounter.WithLabelValues(kind).Inc()
}

// SetActiveScorer flips the active-scorer gauge to the named strategy.
func SetActiveScorer(name string) {
	activeScorerGauge.Reset()
	activeScorerGauge.WithLabelValues(name).Set(1)
}

// RecordModelLoaded updates the loaded-artifact gauges.
func RecordModelLoaded(version int, trainedAt time.Time) {
	modelVersionGauge.Set(float64(version))
	if !trainedAt.IsZero() {
		modelTrainedAtGauge.Set(float64(trainedAt.Unix()))
	}
}

// RecordModelUnloaded resets the artifact gauges to the heuristic baseline.
func RecordModelUnloaded() {
	modelVersionGauge.Set(0)
}

// RecordSchemaMismatch counts an artifact whose feature schema diverged from
// the online feature set.
func RecordSchemaMismatch() {
	schemaMismatchCounter.Inc()
}

// RecordModelLoadFailure counts a failed artifact load.
func RecordModelLoadFailure() {
	modelLoadFailures.Inc()
}
