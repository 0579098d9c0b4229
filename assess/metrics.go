package assess

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors for scoring.
type Metrics struct {
	Assessments    *prometheus.CounterVec
	Scores         prometheus.Histogram
	Rejected       prometheus.Counter
	Fallbacks      *prometheus.CounterVec
	ScorerFailures prometheus.Counter
	StoreFailures  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scholar",
			Name:      "assessments_total",
			Help:      "Applicants scored, by priority tier.",
		}, []string{"tier"}),
		Scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scholar",
			Name:      "priority_score",
			Help:      "Distribution of priority scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scholar",
			Name:      "assessments_rejected_total",
			Help:      "Assessment requests rejected by input validation.",
		}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scholar",
			Name:      "input_fallbacks_total",
			Help:      "Indicators that fell back to the neutral default, by indicator.",
		}, []string{"indicator"}),
		ScorerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scholar",
			Name:      "image_scorer_failures_total",
			Help:      "House photo scoring attempts that failed.",
		}),
		StoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scholar",
			Name:      "assessment_store_failures_total",
			Help:      "Assessments that could not be written to history.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Assessments, m.Scores, m.Rejected, m.Fallbacks, m.ScorerFailures, m.StoreFailures)
	}
	return m
}
