package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RuleFailures counts rules that errored or panicked during evaluation
	RuleFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "censai",
			Name:      "rule_failures_total",
			Help:      "Total number of rule evaluations that failed and were skipped",
		},
		[]string{"rule"},
	)

	// FindingsTotal counts raw findings produced per rule
	FindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "censai",
			Name:      "findings_total",
			Help:      "Total number of raw findings produced by rules",
		},
		[]string{"rule"},
	)

	// GuardOutcomes counts rewrite validation results
	GuardOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "censai",
			Name:      "guard_outcomes_total",
			Help:      "Total number of guarded rewrites by result and reason",
		},
		[]string{"result", "reason"},
	)

	// SummariesTotal counts summarization requests
	SummariesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "censai",
			Name:      "summaries_total",
			Help:      "Total number of summaries produced",
		},
		[]string{"rewrite"},
	)

	// SummarizeDuration observes end-to-end summarization latency
	SummarizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "censai",
			Name:      "summarize_duration_seconds",
			Help:      "Latency of summarization requests",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// GenerateDuration observes generation backend latency
	GenerateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "censai",
			Name:      "generate_duration_seconds",
			Help:      "Latency of text-generation backend calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"model"},
	)

	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// It is safe to call more than once.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(RuleFailures)
		prometheus.DefaultRegisterer.Register(FindingsTotal)
		prometheus.DefaultRegisterer.Register(GuardOutcomes)
		prometheus.DefaultRegisterer.Register(SummariesTotal)
		prometheus.DefaultRegisterer.Register(SummarizeDuration)
		prometheus.DefaultRegisterer.Register(GenerateDuration)
	})
}
