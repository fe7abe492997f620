package service

import (
	"context"
	"strings"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"
	"go-stepflow/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AutoApprovedComment is recorded on rows approved by a condition.
const AutoApprovedComment = "Auto-approved based on condition"

// EscalationReason is recorded as the delegation reason of escalated rows.
const EscalationReason = "Auto-escalated due to overdue"

type WorkflowEngine interface {
	InitializeSubmissionWorkflow(ctx context.Context, submissionID uuid.UUID) (*domain.WorkflowProgressView, error)

	StartStep(ctx context.Context, actor domain.ActorContext, progressID uuid.UUID) (*domain.SubmissionWorkflowProgress, error)
	CompleteStep(ctx context.Context, actor domain.ActorContext, in CompleteStepInput) (*domain.SubmissionWorkflowProgress, error)
	RejectStep(ctx context.Context, actor domain.ActorContext, progressID uuid.UUID, reason string) (*domain.SubmissionWorkflowProgress, error)
	SkipStep(ctx context.Context, actor domain.ActorContext, progressID uuid.UUID, reason string) (*domain.SubmissionWorkflowProgress, error)
	DelegateStep(ctx context.Context, actor domain.ActorContext, in DelegateStepInput) (*domain.SubmissionWorkflowProgress, error)

	ProcessEscalations(ctx context.Context) (SweepResult, error)
	ProcessAutoApprovals(ctx context.Context) (SweepResult, error)
	EvaluateAutoApprovals(ctx context.Context, submissionID uuid.UUID) (SweepResult, error)

	GetSubmissionProgress(ctx context.Context, submissionID uuid.UUID) (*domain.WorkflowProgressView, error)
	GetCurrentSteps(ctx context.Context, submissionID uuid.UUID) ([]domain.SubmissionWorkflowProgress, error)
	GetStepProgress(ctx context.Context, progressID uuid.UUID) (*domain.SubmissionWorkflowProgress, error)
	GetWorkflowStatus(ctx context.Context, submissionID uuid.UUID) (domain.WorkflowStatus, error)
	IsWorkflowComplete(ctx context.Context, submissionID uuid.UUID) (bool, error)
	CheckStepDependencies(ctx context.Context, progressID uuid.UUID) (*DependencyCheck, error)
	CanActorActOnStep(ctx context.Context, actor domain.ActorContext, progressID uuid.UUID) (bool, error)
	CanActorActOnTarget(ctx context.Context, actor domain.ActorContext, submissionID uuid.UUID, targetType domain.TargetType, targetID *uuid.UUID) (bool, error)
	GetPendingActions(ctx context.Context, actor domain.ActorContext) ([]domain.SubmissionWorkflowProgress, error)
	CountPendingActions(ctx context.Context, actor domain.ActorContext) (int, error)
}

// SignatureInput is the signature captured with a completion.
type SignatureInput struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type CompleteStepInput struct {
	ProgressID uuid.UUID
	Comments   string
	Signature  *SignatureInput
}

type DelegateStepInput struct {
	ProgressID uuid.UUID
	DelegateTo uuid.UUID
	Reason     string
}

// EngineDeps are the stores and providers the engine runs against.
type EngineDeps struct {
	Definitions ports.DefinitionRepository
	Progress    ports.ProgressRepository
	Submissions ports.SubmissionProvider
	Responses   ports.ResponseStore
	Templates   ports.TemplateProvider
	Identity    ports.IdentityProvider
	Notifier    ports.Notifier
}

type workflowEngine struct {
	definitions ports.DefinitionRepository
	progress    ports.ProgressRepository
	submissions ports.SubmissionProvider
	responses   ports.ResponseStore
	templates   ports.TemplateProvider
	identity    ports.IdentityProvider
	notifier    ports.Notifier
	opts        options
}

func NewWorkflowEngine(deps EngineDeps, opts ...Option) WorkflowEngine {
	return &workflowEngine{
		definitions: deps.Definitions,
		progress:    deps.Progress,
		submissions: deps.Submissions,
		responses:   deps.Responses,
		templates:   deps.Templates,
		identity:    deps.Identity,
		notifier:    deps.Notifier,
		opts:        buildOptions(opts),
	}
}

func (e *workflowEngine) InitializeSubmissionWorkflow(ctx context.Context, submissionID uuid.UUID) (*domain.WorkflowProgressView, error) {
	const op = "initialize workflow"
	logger := e.opts.logger.With(zap.String("submission_id", submissionID.String()))

	// 1. Idempotency guard
	existing, err := e.progress.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		logger.Warn("workflow already initialized, returning existing progress", zap.Int("rows", len(existing)))
		view := domain.NewWorkflowProgressView(submissionID, existing)
		return &view, nil
	}

	// 2. Resolve submission -> template -> definition
	sub, err := e.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	binding, err := e.templates.GetTemplateBinding(ctx, sub.TemplateID)
	if err != nil {
		return nil, err
	}
	if binding.WorkflowID == nil {
		return nil, domain.PreconditionFailed(op, "template %s has no workflow definition", sub.TemplateID)
	}
	def, err := e.definitions.GetDefinition(ctx, *binding.WorkflowID)
	if err != nil {
		return nil, err
	}
	if !def.IsActive {
		return nil, domain.PreconditionFailed(op, "workflow definition %q is inactive", def.Name)
	}
	if err := validation.Definition(def.Steps).Err(op); err != nil {
		return nil, err
	}

	actions, err := e.definitions.ListActions(ctx)
	if err != nil {
		return nil, err
	}
	catalog := make(map[domain.ActionCode]domain.WorkflowAction, len(actions))
	for _, a := range actions {
		catalog[a.Code] = a
	}

	responses, err := e.responses.ListResponses(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	// 3. Snapshot every step into a progress row
	now := e.opts.now()
	rows := make([]domain.SubmissionWorkflowProgress, 0, len(def.Steps))
	lowest := 0
	for _, step := range def.Steps {
		action, ok := catalog[step.ActionCode]
		if !ok {
			return nil, domain.Validation(op, "workflow definition is invalid",
				"step "+step.Name+" uses an action missing from the catalog")
		}
		rows = append(rows, domain.NewProgress(submissionID, step.Snapshot(action), now))
		if lowest == 0 || step.StepOrder < lowest {
			lowest = step.StepOrder
		}
	}

	// 4. Activate the first order and save everything together
	t := newTransition(rows)
	t.rc = &domain.ResolutionContext{Submission: *sub, Responses: responses}
	if err := e.activateReachable(ctx, t, lowest, now); err != nil {
		return nil, err
	}
	if err := e.progress.CreateProgress(ctx, t.rows); err != nil {
		if domain.IsConflict(err) {
			// Another initializer won the race.
			logger.Warn("workflow initialized concurrently, returning existing progress")
			return e.GetSubmissionProgress(ctx, submissionID)
		}
		return nil, err
	}

	e.opts.metrics.WorkflowsInitialized.Inc()
	e.afterCommit(ctx, t)
	logger.Info("workflow initialized",
		zap.String("workflow_id", def.ID.String()),
		zap.Int("steps", len(t.rows)),
		zap.Int("activated", len(t.activated)))

	view := domain.NewWorkflowProgressView(submissionID, t.rows)
	return &view, nil
}

// checkActor applies the preconditions shared by the actor operations, in
// the order their failures are reported.
func checkActor(op string, t *transition, row *domain.SubmissionWorkflowProgress, actor domain.ActorContext, needDeps bool) error {
	if !row.Status.IsActionable() {
		return domain.PreconditionFailed(op, "step %q is already %s", row.StepName, row.Status)
	}
	if domain.IsWorkflowRejected(t.rows) {
		return domain.PreconditionFailed(op, "workflow of submission %s was rejected", row.SubmissionID)
	}
	if needDeps {
		if unmet := row.UnmetDependencies(t.rows); len(unmet) > 0 {
			names := make([]string, len(unmet))
			for i, id := range unmet {
				names[i] = t.stepName(id)
			}
			return domain.PreconditionFailed(op, "step %q is waiting on %s", row.StepName, strings.Join(names, ", "))
		}
	}
	if !row.IsActive() {
		return domain.PreconditionFailed(op, "step %q has not been reached yet", row.StepName)
	}
	// Dormant rows have no resolved assignee yet, so authorization is only
	// meaningful once the row is reached.
	if !row.CanBeActedOnBy(actor) {
		return domain.Forbidden(op, "user %s may not act on step %q", actor.UserID, row.StepName)
	}
	return nil
}

func (e *workflowEngine) StartStep(ctx context.Context, actor domain.ActorContext, progressID uuid.UUID) (*domain.SubmissionWorkflowProgress, error) {
	const op = "start step"
	_, row, err := e.runTransition(ctx, op, progressID, func(t *transition, row *domain.SubmissionWorkflowProgress) error {
		if err := checkActor(op, t, row, actor, true); err != nil {
			return err
		}
		if row.Status == domain.StatusInProgress {
			return domain.PreconditionFailed(op, "step %q is already in progress", row.StepName)
		}
		t.setStatus(row, domain.StatusInProgress)
		return nil
	})
	return row, err
}

func (e *workflowEngine) CompleteStep(ctx context.Context, actor domain.ActorContext, in CompleteStepInput) (*domain.SubmissionWorkflowProgress, error) {
	const op = "complete step"
	_, row, err := e.runTransition(ctx, op, in.ProgressID, func(t *transition, row *domain.SubmissionWorkflowProgress) error {
		if err := checkActor(op, t, row, actor, true); err != nil {
			return err
		}
		if row.RequiresSignature && (in.Signature == nil || strings.TrimSpace(in.Signature.Data) == "") {
			return domain.Validation(op, "step "+row.StepName+" requires a signature")
		}
		if row.RequiresComment && strings.TrimSpace(in.Comments) == "" {
			return domain.Validation(op, "step "+row.StepName+" requires a comment")
		}

		now := e.opts.now()
		status := domain.StatusCompleted
		if row.ActionCode.IsApprovalFamily() {
			status = domain.StatusApproved
		}
		t.setStatus(row, status)
		reviewer := actor.UserID
		row.ReviewedBy = &reviewer
		row.ReviewedDate = &now
		row.Comments = in.Comments
		if in.Signature != nil && in.Signature.Data != "" {
			row.SignatureType = in.Signature.Type
			row.SignatureData = in.Signature.Data
			row.SignatureSource = actor.ClientIP
			row.SignatureDate = &now
		}
		return e.advance(ctx, t, row, now)
	})
	if err == nil {
		e.opts.logger.Info("step completed",
			zap.String("progress_id", row.ID.String()),
			zap.String("status", string(row.Status)),
			zap.String("actor", actor.UserID.String()))
	}
	return row, err
}

func (e *workflowEngine) RejectStep(ctx context.Context, actor domain.ActorContext, progressID uuid.UUID, reason string) (*domain.SubmissionWorkflowProgress, error) {
	const op = "reject step"
	if strings.TrimSpace(reason) == "" {
		return nil, domain.Validation(op, "a rejection reason is required")
	}
	_, row, err := e.runTransition(ctx, op, progressID, func(t *transition, row *domain.SubmissionWorkflowProgress) error {
		if err := checkActor(op, t, row, actor, false); err != nil {
			return err
		}
		now := e.opts.now()
		t.setStatus(row, domain.StatusRejected)
		reviewer := actor.UserID
		row.ReviewedBy = &reviewer
		row.ReviewedDate = &now
		row.Comments = reason
		t.outcome = domain.SubmissionRejected
		return nil
	})
	if err == nil {
		e.opts.logger.Info("step rejected",
			zap.String("progress_id", row.ID.String()),
			zap.String("actor", actor.UserID.String()))
	}
	return row, err
}

func (e *workflowEngine) SkipStep(ctx context.Context, actor domain.ActorContext, progressID uuid.UUID, reason string) (*domain.SubmissionWorkflowProgress, error) {
	const op = "skip step"
	_, row, err := e.runTransition(ctx, op, progressID, func(t *transition, row *domain.SubmissionWorkflowProgress) error {
		if err := checkActor(op, t, row, actor, true); err != nil {
			return err
		}
		if row.IsMandatory {
			return domain.PreconditionFailed(op, "step %q is mandatory and cannot be skipped", row.StepName)
		}
		now := e.opts.now()
		t.setStatus(row, domain.StatusSkipped)
		reviewer := actor.UserID
		row.ReviewedBy = &reviewer
		row.ReviewedDate = &now
		row.Comments = reason
		return e.advance(ctx, t, row, now)
	})
	return row, err
}

func (e *workflowEngine) DelegateStep(ctx context.Context, actor domain.ActorContext, in DelegateStepInput) (*domain.SubmissionWorkflowProgress, error) {
	const op = "delegate step"
	if in.DelegateTo == uuid.Nil {
		return nil, domain.Validation(op, "a delegate is required")
	}
	if in.DelegateTo == actor.UserID {
		return nil, domain.Validation(op, "a step cannot be delegated to yourself")
	}
	if _, err := e.identity.Membership(ctx, in.DelegateTo); err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.Validation(op, "delegate "+in.DelegateTo.String()+" is not an active user")
		}
		return nil, err
	}

	_, row, err := e.runTransition(ctx, op, in.ProgressID, func(t *transition, row *domain.SubmissionWorkflowProgress) error {
		if err := checkActor(op, t, row, actor, false); err != nil {
			return err
		}
		if !row.AllowDelegate {
			return domain.PreconditionFailed(op, "the %s action of step %q cannot be delegated", row.ActionCode, row.StepName)
		}
		now := e.opts.now()
		by, to := actor.UserID, in.DelegateTo
		row.DelegatedBy = &by
		row.DelegatedTo = &to
		row.DelegatedDate = &now
		row.DelegationReason = in.Reason
		row.AssignedTo = &to
		t.touch(row.ID)
		return nil
	})
	if err == nil {
		e.opts.logger.Info("step delegated",
			zap.String("progress_id", row.ID.String()),
			zap.String("from", actor.UserID.String()),
			zap.String("to", in.DelegateTo.String()))
	}
	return row, err
}
