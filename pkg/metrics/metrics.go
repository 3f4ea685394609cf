package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	qrng = "qrng"

	// Selection metrics
	backendSelectionsTotal = "backend_selections_total"

	// Job metrics
	jobsTotal               = "jobs_total"
	submissionFailuresTotal = "submission_failures_total"
	jobDurationSeconds      = "job_duration_seconds"

	// Validation metrics
	entropyChecksTotal = "entropy_checks_total"

	// Labels
	phaseLabel       = "phase"
	backendKindLabel = "backend_kind"
	jobStatusLabel   = "status"
	backendLabel     = "backend"
	resultLabel      = "result"
)

/**
* Metrics definition
**/
var backendSelectionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: qrng,
		Name:      backendSelectionsTotal,
		Help:      "number of backend selections partitioned by the phase which produced the candidate",
	},
	[]string{phaseLabel},
)

var jobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: qrng,
		Name:      jobsTotal,
		Help:      "number of jobs which reached a terminal status",
	},
	[]string{backendKindLabel, jobStatusLabel},
)

var submissionFailuresTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: qrng,
		Name:      submissionFailuresTotal,
		Help:      "number of rejected job submissions per backend",
	},
	[]string{backendLabel},
)

var jobDurationSecondsMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: qrng,
		Name:      jobDurationSeconds,
		Help:      "time between job submission and its terminal status",
		Buckets:   []float64{0.01, 0.1, 1, 5, 30, 120, 600},
	},
	[]string{backendKindLabel},
)

var entropyChecksTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: qrng,
		Name:      entropyChecksTotal,
		Help:      "number of balance checks run on generated bits",
	},
	[]string{resultLabel},
)

func IncreaseBackendSelectionsMetric(phase string) {
	backendSelectionsTotalMetric.With(prometheus.Labels{phaseLabel: phase}).Inc()
}

func IncreaseJobsMetric(backendKind, status string) {
	jobsTotalMetric.With(prometheus.Labels{
		backendKindLabel: backendKind,
		jobStatusLabel:   status,
	}).Inc()
}

func IncreaseSubmissionFailuresMetric(backend string) {
	submissionFailuresTotalMetric.With(prometheus.Labels{backendLabel: backend}).Inc()
}

func ObserveJobDurationMetric(backendKind string, seconds float64) {
	jobDurationSecondsMetric.With(prometheus.Labels{backendKindLabel: backendKind}).Observe(seconds)
}

func IncreaseEntropyChecksMetric(pass bool) {
	result := "fail"
	if pass {
		result = "pass"
	}
	entropyChecksTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(backendSelectionsTotalMetric)
	prometheus.MustRegister(jobsTotalMetric)
	prometheus.MustRegister(submissionFailuresTotalMetric)
	prometheus.MustRegister(jobDurationSecondsMetric)
	prometheus.MustRegister(entropyChecksTotalMetric)
}
