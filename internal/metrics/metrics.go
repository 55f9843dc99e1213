// Package metrics defines the Prometheus collectors of the service.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service's collectors
type Metrics struct {
	Predictions      *prometheus.CounterVec
	InferenceLatency prometheus.Histogram
	InputLength      prometheus.Histogram
	BatchJobs        *prometheus.CounterVec
	BatchSize        prometheus.Histogram
	ArtifactInfo     *prometheus.GaugeVec
}

// New registers the collectors with reg under the given namespace
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Classification calls by outcome.",
		}, []string{"outcome"}),
		InferenceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent in a single classification call.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		InputLength: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "input_length_chars",
			Help:      "Length of classified texts.",
			Buckets:   prometheus.ExponentialBuckets(8, 4, 8),
		}),
		BatchJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_jobs_total",
			Help:      "Batch classification jobs by status.",
		}, []string{"status"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size_texts",
			Help:      "Number of texts per batch job.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		ArtifactInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_features",
			Help:      "Width of the loaded model's feature space.",
		}, []string{"part"}),
	}
}

// ObservePrediction records one classification call
func (m *Metrics) ObservePrediction(outcome string, textLen int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(outcome).Inc()
	m.InferenceLatency.Observe(elapsed.Seconds())
	m.InputLength.Observe(float64(textLen))
}

// ObserveBatch records one batch job
func (m *Metrics) ObserveBatch(status string, size int) {
	if m == nil {
		return
	}
	m.BatchJobs.WithLabelValues(status).Inc()
	m.BatchSize.Observe(float64(size))
}

// SetArtifact publishes the loaded artifact's dimensions
func (m *Metrics) SetArtifact(vocabulary, total int) {
	if m == nil {
		return
	}
	m.ArtifactInfo.WithLabelValues("vocabulary").Set(float64(vocabulary))
	m.ArtifactInfo.WithLabelValues("total").Set(float64(total))
}

// RegisterDBStats exposes the connection pool statistics of conn
func RegisterDBStats(dbName string, reg prometheus.Registerer, conn *sql.DB) error {
	return reg.Register(collectors.NewDBStatsCollector(conn, dbName))
}
