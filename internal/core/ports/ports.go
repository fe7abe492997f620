package ports

import (
	"context"
	"time"

	"go-stepflow/internal/domain"

	"github.com/google/uuid"
)

// 1. Definitions: workflow definitions, their steps, and the action catalog.
type DefinitionRepository interface {
	// CreateDefinition saves the definition and its Steps in one transaction.
	CreateDefinition(ctx context.Context, def *domain.WorkflowDefinition) error
	// GetDefinition returns the definition with its steps ordered by StepOrder.
	GetDefinition(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, error)
	ListDefinitions(ctx context.Context, activeOnly bool) ([]domain.WorkflowDefinition, error)
	// UpdateDefinition saves the definition's own columns, not its steps.
	UpdateDefinition(ctx context.Context, def *domain.WorkflowDefinition) error
	// DeleteDefinition removes the definition and its steps.
	DeleteDefinition(ctx context.Context, id uuid.UUID) error

	GetStep(ctx context.Context, id uuid.UUID) (*domain.WorkflowStep, error)
	CreateStep(ctx context.Context, step *domain.WorkflowStep) error
	UpdateStep(ctx context.Context, step *domain.WorkflowStep) error
	// DeleteStep removes the step and drops it from the dependency lists of
	// its siblings in one transaction.
	DeleteStep(ctx context.Context, id uuid.UUID) error
	// ReorderSteps assigns new orders to the given steps in one transaction.
	ReorderSteps(ctx context.Context, workflowID uuid.UUID, orders map[uuid.UUID]int) error

	ListActions(ctx context.Context) ([]domain.WorkflowAction, error)
}

// ActionableFilter selects open, activated rows one actor may act on.
type ActionableFilter struct {
	UserID       uuid.UUID
	RoleIDs      []uuid.UUID
	DepartmentID *uuid.UUID
}

// Transition is the write set of one engine transition, together with the
// versions of the submission rows it was computed from.
type Transition struct {
	SubmissionID uuid.UUID
	// Read maps every row ID of the submission to the Version it was read at.
	Read    map[uuid.UUID]int
	Changed []domain.SubmissionWorkflowProgress
}

// NewTransition records the versions of rows, all of one submission, and
// the subset that changed.
func NewTransition(rows, changed []domain.SubmissionWorkflowProgress) Transition {
	t := Transition{Read: make(map[uuid.UUID]int, len(rows)), Changed: changed}
	for _, r := range rows {
		t.SubmissionID = r.SubmissionID
		t.Read[r.ID] = r.Version
	}
	return t
}

// 2. Progress: the per-submission runtime rows.
type ProgressRepository interface {
	// CreateProgress inserts all rows of one submission in one transaction.
	// It fails with a conflict error if the submission already has rows.
	CreateProgress(ctx context.Context, rows []domain.SubmissionWorkflowProgress) error
	GetProgress(ctx context.Context, id uuid.UUID) (*domain.SubmissionWorkflowProgress, error)
	ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]domain.SubmissionWorkflowProgress, error)
	// SaveTransition writes the changed rows in one transaction. The write
	// only happens if every row of the submission still has the Version it
	// was read at, so a decision based on sibling rows cannot go stale. On
	// success the stored Version of each changed row is incremented. Any
	// mismatch rolls back the whole set and returns a conflict error.
	SaveTransition(ctx context.Context, t Transition) error
	CountByStep(ctx context.Context, stepID uuid.UUID) (int64, error)

	// FindOverdue returns open, activated rows with an escalation role, a due
	// date before now, and no escalation yet.
	FindOverdue(ctx context.Context, now time.Time) ([]domain.SubmissionWorkflowProgress, error)
	// FindAutoApprovable returns open, activated rows carrying a condition.
	// A nil submissionID searches all submissions.
	FindAutoApprovable(ctx context.Context, submissionID *uuid.UUID) ([]domain.SubmissionWorkflowProgress, error)
	FindActionable(ctx context.Context, filter ActionableFilter) ([]domain.SubmissionWorkflowProgress, error)
}

// 3. Submission lifecycle provider.
type SubmissionProvider interface {
	GetSubmission(ctx context.Context, id uuid.UUID) (*domain.Submission, error)
	SetSubmissionStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error
}

// 4. Response store.
type ResponseStore interface {
	ListResponses(ctx context.Context, submissionID uuid.UUID) ([]domain.Response, error)
}

// 5. Templates bound to definitions.
type TemplateProvider interface {
	GetTemplateBinding(ctx context.Context, templateID uuid.UUID) (*domain.TemplateBinding, error)
	CountTemplatesUsing(ctx context.Context, workflowID uuid.UUID) (int64, error)
}

// 6. Identity and role provider.
type IdentityProvider interface {
	// Membership returns the current roles and department of a user.
	Membership(ctx context.Context, userID uuid.UUID) (domain.ActorContext, error)
	// FirstActiveUserWithRole returns uuid.Nil and no error when nobody
	// holds the role.
	FirstActiveUserWithRole(ctx context.Context, roleID uuid.UUID) (uuid.UUID, error)
}

// 7. Notifications go out after a transition commits.
type Notifier interface {
	PublishStepActivated(ctx context.Context, event domain.StepActivatedEvent) error
	PublishStepEscalated(ctx context.Context, event domain.StepEscalatedEvent) error
	PublishWorkflowFinished(ctx context.Context, event domain.WorkflowFinishedEvent) error
}

// 8. Inbound submission lifecycle events.
type SubmissionEventSource interface {
	SubscribeToSubmissionEvents(ctx context.Context) (<-chan domain.SubmissionEvent, error)
}

// 9. Queue of submissions whose auto-approval conditions need evaluating.
type TaskQueue interface {
	Push(ctx context.Context, submissionID string) error
	// Pop blocks for the next submission ID. An empty ID with no error means
	// nothing arrived within the implementation's poll window.
	Pop(ctx context.Context) (string, error)
}
