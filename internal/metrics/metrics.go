// Package metrics exposes Prometheus counters for executions and gradings.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/michaelbrown/gradebox/internal/grader"
	"github.com/michaelbrown/gradebox/internal/sandbox"
)

// Metrics holds all Prometheus metrics for gradebox.
type Metrics struct {
	Executions          *prometheus.CounterVec
	ExecutionDuration   prometheus.Histogram
	Gradings            *prometheus.CounterVec
	GradingScore        prometheus.Histogram
	ForbiddenRejections prometheus.Counter
}

// New creates a Metrics instance registered on registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gradebox_executions_total",
				Help: "Total number of sandboxed executions by outcome",
			},
			[]string{"outcome"},
		),
		ExecutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gradebox_execution_duration_seconds",
				Help:    "Wall-clock duration of sandboxed executions",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2, 5},
			},
		),
		Gradings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gradebox_gradings_total",
				Help: "Total number of gradings by terminal state",
			},
			[]string{"state"},
		),
		GradingScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gradebox_grading_score",
				Help:    "Scores of completed gradings",
				Buckets: prometheus.LinearBuckets(0, 1, 11),
			},
		),
		ForbiddenRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gradebox_forbidden_rejections_total",
				Help: "Submissions rejected for using a forbidden construct",
			},
		),
	}
}

// NewRegistry creates a Prometheus registry with gradebox metrics.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, New(reg)
}

// Handler returns the /metrics handler for reg.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveExec records one execution result.
func (m *Metrics) ObserveExec(res *sandbox.ExecResult) {
	m.Executions.WithLabelValues(string(res.Type)).Inc()
	m.ExecutionDuration.Observe(res.Duration.Seconds())
}

// ObserveGrade records one finished grading. It satisfies grader.Observer.
func (m *Metrics) ObserveGrade(r *grader.Report, _ time.Duration) {
	m.Gradings.WithLabelValues(string(r.State)).Inc()
	switch r.State {
	case grader.StateScored:
		m.GradingScore.Observe(r.Score)
	case grader.StateRejectedForbidden:
		m.ForbiddenRejections.Inc()
	}
}

// Instrument wraps sb so every completed execution is recorded.
func (m *Metrics) Instrument(sb sandbox.Sandbox) sandbox.Sandbox {
	return &instrumented{next: sb, m: m}
}

type instrumented struct {
	next sandbox.Sandbox
	m    *Metrics
}

func (i *instrumented) Exec(ctx context.Context, opts sandbox.ExecOpts) (*sandbox.ExecResult, error) {
	res, err := i.next.Exec(ctx, opts)
	if err == nil {
		i.m.ObserveExec(res)
	}
	return res, err
}
