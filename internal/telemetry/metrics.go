package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of an option commit.
const (
	OutcomeCommitted = "committed"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
	OutcomePartial   = "partial"
)

var (
	optionCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizlens_option_commits_total",
		Help: "Option commits by outcome.",
	}, []string{"outcome"})

	reportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quizlens_report_duration_seconds",
		Help:    "Time spent building analytics reports.",
		Buckets: prometheus.DefBuckets,
	}, []string{"report"})
)

func CountOptionCommit(outcome string) {
	optionCommits.WithLabelValues(outcome).Inc()
}

// TimeReport starts timing a report build. Call the returned func when the report is done.
func TimeReport(report string) func() {
	start := time.Now()
	return func() {
		reportDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
	}
}
