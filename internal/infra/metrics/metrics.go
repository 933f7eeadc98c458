// Package metrics exposes Prometheus instrumentation for use cases and the
// HTTP adapter.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/runoshun/capsule/internal/domain"
)

const namespace = "capsule"

// Outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeRejected   = "rejected"
	OutcomeGuard      = "guard"
	OutcomeNotFound   = "not_found"
	OutcomeValidation = "validation"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	rejections *prometheus.CounterVec
	retries    prometheus.Counter
	duration   *prometheus.HistogramVec
}

// New registers the capsule collectors, plus the Go and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		// operations counts use case executions.
		// Labels: operation, outcome (ok, rejected, guard, not_found, validation, conflict, error)
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usecase",
			Name:      "operations_total",
			Help:      "Use case executions by operation and outcome",
		}, []string{"operation", "outcome"}),
		// rejections counts refused mutations by reason.
		// Labels: reason (open_subtasks, open_blockers, cycle, depth, self_reference, cross_task)
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "rejections_total",
			Help:      "Mutations refused by graph, hierarchy or completion guards",
		}, []string{"reason"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "conflict_retries_total",
			Help:      "Use case re-runs after a concurrent modification",
		}),
		// duration measures HTTP request handling time.
		// Labels: method, route, status
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOperation counts one use case execution and, for guard refusals,
// the rejection reason.
func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, Outcome(err)).Inc()

	var rejected *domain.CompletionRejectedError
	switch {
	case errors.As(err, &rejected):
		m.ObserveCompletionRejected(rejected.Result)
	case errors.Is(err, domain.ErrCycle):
		m.rejections.WithLabelValues("cycle").Inc()
	case errors.Is(err, domain.ErrDepth):
		m.rejections.WithLabelValues("depth").Inc()
	case errors.Is(err, domain.ErrSelfReference):
		m.rejections.WithLabelValues("self_reference").Inc()
	case errors.Is(err, domain.ErrCrossTaskComment):
		m.rejections.WithLabelValues("cross_task").Inc()
	}
}

// ObserveCompletionRejected counts the blocking categories of a refused completion.
func (m *Metrics) ObserveCompletionRejected(result domain.CompletionResult) {
	if m == nil {
		return
	}
	if len(result.Subtasks) > 0 {
		m.rejections.WithLabelValues("open_subtasks").Inc()
	}
	if len(result.Blockers) > 0 {
		m.rejections.WithLabelValues("open_blockers").Inc()
	}
}

// ObserveRetry counts one conflict retry.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// ObserveRequest records the latency of one HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// Outcome maps a use case error to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrCompletionRejected):
		return OutcomeRejected
	case domain.IsGuardError(err):
		return OutcomeGuard
	case domain.IsNotFound(err):
		return OutcomeNotFound
	case domain.IsValidation(err):
		return OutcomeValidation
	case errors.Is(err, domain.ErrConflict):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}
