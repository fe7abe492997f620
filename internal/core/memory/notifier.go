package memory

import (
	"context"
	"slices"
	"sync"

	"go-stepflow/internal/domain"
)

// Notifier records published events in memory.
type Notifier struct {
	mu        sync.Mutex
	activated []domain.StepActivatedEvent
	escalated []domain.StepEscalatedEvent
	finished  []domain.WorkflowFinishedEvent
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) PublishStepActivated(_ context.Context, e domain.StepActivatedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activated = append(n.activated, e)
	return nil
}

func (n *Notifier) PublishStepEscalated(_ context.Context, e domain.StepEscalatedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escalated = append(n.escalated, e)
	return nil
}

func (n *Notifier) PublishWorkflowFinished(_ context.Context, e domain.WorkflowFinishedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, e)
	return nil
}

func (n *Notifier) Activated() []domain.StepActivatedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.activated)
}

func (n *Notifier) Escalated() []domain.StepEscalatedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.escalated)
}

func (n *Notifier) Finished() []domain.WorkflowFinishedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.finished)
}
