// Package metrics provides observability for chart evaluation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the evaluation pipeline instruments.
type Metrics struct {
	// Evaluation verdicts by label and payer
	Verdicts *prometheus.CounterVec

	// Full evaluation latency: normalization, rule passes, persistence
	EvaluateLatency prometheus.Histogram

	// Normalization failures by document kind
	NormalizeFailures *prometheus.CounterVec

	// Rule sets rejected by the lint gate on publish
	LintRejections prometheus.Counter
}

// New creates a Metrics instance with all instruments registered on the
// default registry.
func New() *Metrics {
	return &Metrics{
		Verdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chartcheck_evaluation_verdicts_total",
			Help: "Total evaluation verdicts by label and payer",
		}, []string{"verdict", "payer"}),

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartcheck_evaluation_duration_seconds",
			Help:    "Duration of full chart evaluation including normalization and persistence",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		NormalizeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chartcheck_normalization_failures_total",
			Help: "Raw documents the normalization layer could not process, by kind",
		}, []string{"kind"}), // kind: "patient", "policy"

		LintRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chartcheck_ruleset_lint_rejections_total",
			Help: "Rule-set publishes rejected by the lint gate",
		}),
	}
}

// IncrementVerdict records one evaluation outcome.
func (m *Metrics) IncrementVerdict(verdict, payer string) {
	if m != nil {
		m.Verdicts.WithLabelValues(verdict, payer).Inc()
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// IncrementNormalizeFailure records a document the normalizer rejected.
func (m *Metrics) IncrementNormalizeFailure(kind string) {
	if m != nil {
		m.NormalizeFailures.WithLabelValues(kind).Inc()
	}
}

// IncrementLintRejection records a rule set rejected on publish.
func (m *Metrics) IncrementLintRejection() {
	if m != nil {
		m.LintRejections.Inc()
	}
}
