package coordinator

import (
	"context"
	"fmt"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Initializer is the part of the workflow engine the coordinator drives.
type Initializer interface {
	InitializeSubmissionWorkflow(ctx context.Context, submissionID uuid.UUID) (*domain.WorkflowProgressView, error)
}

// Coordinator turns submission lifecycle events into engine calls.
type Coordinator struct {
	engine Initializer
	queue  ports.TaskQueue
	events ports.SubmissionEventSource
	log    *zap.Logger
}

func NewCoordinator(engine Initializer, queue ports.TaskQueue, events ports.SubmissionEventSource, log *zap.Logger) *Coordinator {
	return &Coordinator{
		engine: engine,
		queue:  queue,
		events: events,
		log:    log.Named("coordinator"),
	}
}

// Start listens until ctx is done or the event stream closes. Call this in
// main.go as a goroutine.
func (c *Coordinator) Start(ctx context.Context) error {
	eventChannel, err := c.events.SubscribeToSubmissionEvents(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to submission events: %w", err)
	}
	c.log.Info("coordinator started, listening for submission events")

	for {
		select {
		case <-ctx.Done():
			c.log.Info("coordinator shutting down")
			return nil

		case event, ok := <-eventChannel:
			if !ok {
				c.log.Info("submission event stream closed")
				return nil
			}
			c.Handle(ctx, event)
		}
	}
}

// Handle processes one event. Failures are logged; the stream goes on.
func (c *Coordinator) Handle(ctx context.Context, event domain.SubmissionEvent) {
	log := c.log.With(zap.Stringer("submission_id", event.SubmissionID), zap.String("event", string(event.Type)))

	switch event.Type {
	case domain.SubmissionCreated:
		view, err := c.engine.InitializeSubmissionWorkflow(ctx, event.SubmissionID)
		switch {
		case domain.CodeOf(err) == domain.ErrPreconditionFailed:
			// Templates without a workflow are not ours to track.
			log.Debug("submission has no workflow", zap.Error(err))
			return
		case err != nil:
			log.Error("initializing workflow", zap.Error(err))
			return
		}
		log.Info("workflow initialized", zap.Int("steps", len(view.Steps)))

		// The first steps may already satisfy their conditions.
		c.enqueue(ctx, log, event.SubmissionID)

	case domain.SubmissionResponsesChanged:
		c.enqueue(ctx, log, event.SubmissionID)

	default:
		log.Warn("ignoring unknown submission event")
	}
}

func (c *Coordinator) enqueue(ctx context.Context, log *zap.Logger, submissionID uuid.UUID) {
	if err := c.queue.Push(ctx, submissionID.String()); err != nil {
		log.Error("queueing auto-approval re-evaluation", zap.Error(err))
	}
}
