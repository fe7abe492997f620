package worker

import (
	"context"

	"go-stepflow/internal/service"

	"github.com/google/uuid"
)

const (
	JobEscalation   = "escalation"
	JobAutoApproval = "auto_approval"
)

// Sweeper is the part of the workflow engine that background jobs drive.
type Sweeper interface {
	ProcessEscalations(ctx context.Context) (service.SweepResult, error)
	ProcessAutoApprovals(ctx context.Context) (service.SweepResult, error)
	EvaluateAutoApprovals(ctx context.Context, submissionID uuid.UUID) (service.SweepResult, error)
}

// Job is one background sweep.
type Job func(ctx context.Context) (service.SweepResult, error)

// JobRegistry maps job names to sweeps.
type JobRegistry map[string]Job

// InitRegistry wires the engine's sweeps under their job names.
func InitRegistry(engine Sweeper) JobRegistry {
	return JobRegistry{
		JobEscalation:   engine.ProcessEscalations,
		JobAutoApproval: engine.ProcessAutoApprovals,
	}
}
