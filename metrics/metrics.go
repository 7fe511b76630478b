// Package metrics exposes Prometheus instrumentation for suite runs,
// distributed workers, and broker health.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gauntlet-eval/gauntlet/types"
)

const (
	MetricsNamespace = "gauntlet"
)

var (
	caseResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "case_results_total",
		Help:      "Count of case results by suite and status",
	}, []string{
		"suite",
		"status",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of completed suite runs",
	}, []string{
		"suite",
		"mode",
	})

	runPassRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_pass_rate",
		Help:      "Pass rate of the most recent run per suite",
	}, []string{
		"suite",
		"mode",
	})

	workerTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "worker_tasks_total",
		Help:      "Count of tasks processed by this worker",
	}, []string{
		"worker",
		"status",
	})

	brokerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "broker_errors_total",
		Help:      "Count of broker operation failures",
	}, []string{
		"op",
	})
)

// RecordCaseResult counts one completed case.
func RecordCaseResult(suite string, status types.CaseStatus) {
	caseResultsTotal.WithLabelValues(suite, string(status)).Inc()
}

// RecordRun records a completed run and its pass rate. Mode is "local" or
// "distributed".
func RecordRun(suite, mode string, passRate float64) {
	runsTotal.WithLabelValues(suite, mode).Inc()
	runPassRate.WithLabelValues(suite, mode).Set(passRate)
}

// RecordWorkerTask counts one task processed by a worker.
func RecordWorkerTask(workerID string, status types.CaseStatus) {
	workerTasksTotal.WithLabelValues(workerID, string(status)).Inc()
}

// RecordBrokerError counts a failed broker operation.
func RecordBrokerError(op string) {
	brokerErrorsTotal.WithLabelValues(op).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
