package observability

import (
	"context"

	"go-stepflow/internal/domain"

	"go.uber.org/zap"
)

// LogNotifier writes workflow events to the log. It stands in for the Redis
// event bus when Redis is disabled.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notifier")}
}

func (n *LogNotifier) PublishStepActivated(_ context.Context, e domain.StepActivatedEvent) error {
	fields := []zap.Field{
		zap.Stringer("submission_id", e.SubmissionID),
		zap.Stringer("progress_id", e.ProgressID),
		zap.String("step", e.StepName),
		zap.Int("order", e.StepOrder),
	}
	if e.AssignedTo != nil {
		fields = append(fields, zap.Stringer("assigned_to", e.AssignedTo))
	}
	if e.DueDate != nil {
		fields = append(fields, zap.Time("due_date", *e.DueDate))
	}
	n.log.Info("step activated", fields...)
	return nil
}

func (n *LogNotifier) PublishStepEscalated(_ context.Context, e domain.StepEscalatedEvent) error {
	n.log.Info("step escalated",
		zap.Stringer("submission_id", e.SubmissionID),
		zap.Stringer("progress_id", e.ProgressID),
		zap.String("step", e.StepName),
		zap.Stringer("escalated_to", e.EscalatedTo),
	)
	return nil
}

func (n *LogNotifier) PublishWorkflowFinished(_ context.Context, e domain.WorkflowFinishedEvent) error {
	n.log.Info("workflow finished",
		zap.Stringer("submission_id", e.SubmissionID),
		zap.String("outcome", string(e.Outcome)),
	)
	return nil
}
