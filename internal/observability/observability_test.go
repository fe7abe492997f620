package observability

import (
	"context"
	"testing"

	"go-stepflow/internal/config"
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitMetrics_RegistersInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)

	m.StepTransitions.WithLabelValues("Approved").Inc()
	m.StepTransitions.WithLabelValues("Approved").Inc()
	m.Escalations.WithLabelValues("no_assignee").Inc()
	m.StoreConflicts.Inc()
	m.SweepDuration.WithLabelValues("escalation").Observe(0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StepTransitions.WithLabelValues("Approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Escalations.WithLabelValues("no_assignee")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreConflicts))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"stepflow_step_transitions_total",
		"stepflow_escalations_total",
		"stepflow_store_conflicts_total",
		"stepflow_sweep_duration_seconds",
	} {
		assert.True(t, names[want], want)
	}
}

func TestInitMetrics_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	InitMetrics(reg)
	assert.Panics(t, func() { InitMetrics(reg) })
}

func TestNewLogger_Levels(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = NewLogger(config.LoggingConfig{Level: "chatty"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestLoggerFrom(t *testing.T) {
	fallback := zap.NewNop()
	assert.Same(t, fallback, LoggerFrom(context.Background(), fallback))

	l := zap.NewExample()
	assert.Same(t, l, LoggerFrom(WithLogger(context.Background(), l), fallback))
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))
	ctx := context.Background()
	assignee := uuid.New()

	require.NoError(t, n.PublishStepActivated(ctx, domain.StepActivatedEvent{StepName: "Review", AssignedTo: &assignee}))
	require.NoError(t, n.PublishStepEscalated(ctx, domain.StepEscalatedEvent{StepName: "Review", EscalatedTo: uuid.New()}))
	require.NoError(t, n.PublishWorkflowFinished(ctx, domain.WorkflowFinishedEvent{Outcome: domain.SubmissionApproved}))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "step activated", entries[0].Message)
	assert.Equal(t, assignee.String(), entries[0].ContextMap()["assigned_to"])
	assert.Equal(t, "step escalated", entries[1].Message)
	assert.Equal(t, "Approved", entries[2].ContextMap()["outcome"])
}
