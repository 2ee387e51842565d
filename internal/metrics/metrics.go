package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors for the ranking pipeline.
type Metrics struct {
	registry *prometheus.Registry

	BatchesRanked     *prometheus.CounterVec
	CandidatesScored  prometheus.Counter
	CandidateFailures *prometheus.CounterVec
	RankDuration      prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		BatchesRanked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cvintel",
			Name:      "batches_ranked_total",
			Help:      "Completed ranking passes by outcome.",
		}, []string{"outcome"}),
		CandidatesScored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cvintel",
			Name:      "candidates_scored_total",
			Help:      "Candidates that produced a final score.",
		}),
		CandidateFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cvintel",
			Name:      "candidate_failures_total",
			Help:      "Per-candidate failures by error code.",
		}, []string{"code"}),
		RankDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cvintel",
			Name:      "rank_duration_seconds",
			Help:      "Wall time of a full batch ranking pass.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
