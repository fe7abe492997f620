package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var sweepDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	WorkflowsInitialized prometheus.Counter
	// StepTransitions is labelled by the resulting status.
	StepTransitions   *prometheus.CounterVec
	WorkflowsFinished *prometheus.CounterVec
	// Escalations is labelled escalated, no_assignee or error.
	Escalations *prometheus.CounterVec
	// AutoApprovals is labelled approved or error.
	AutoApprovals  *prometheus.CounterVec
	StoreConflicts prometheus.Counter
	SweepDuration  *prometheus.HistogramVec
}

// InitMetrics creates the instruments and registers them with reg.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WorkflowsInitialized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stepflow_workflows_initialized_total",
			Help: "Submissions whose workflow progress was created.",
		}),
		StepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_step_transitions_total",
			Help: "Progress rows moved to a new status.",
		}, []string{"status"}),
		WorkflowsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_workflows_finished_total",
			Help: "Workflows that reached a final outcome.",
		}, []string{"outcome"}),
		Escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_escalations_total",
			Help: "Escalation attempts on overdue steps.",
		}, []string{"result"}),
		AutoApprovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_auto_approvals_total",
			Help: "Auto-approval transitions and failures.",
		}, []string{"result"}),
		StoreConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stepflow_store_conflicts_total",
			Help: "Optimistic-lock conflicts seen while saving transitions.",
		}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stepflow_sweep_duration_seconds",
			Help:    "Duration of background sweep runs.",
			Buckets: sweepDurationBuckets,
		}, []string{"job"}),
	}

	reg.MustRegister(
		m.WorkflowsInitialized,
		m.StepTransitions,
		m.WorkflowsFinished,
		m.Escalations,
		m.AutoApprovals,
		m.StoreConflicts,
		m.SweepDuration,
	)
	return m
}
