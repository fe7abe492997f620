package service

import (
	"context"
	"slices"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
)

// DependencyCheck reports which dependencies of a row are still open.
type DependencyCheck struct {
	ProgressID uuid.UUID   `json:"progress_id"`
	Met        bool        `json:"met"`
	Unmet      []uuid.UUID `json:"unmet,omitempty"`
}

// GetSubmissionProgress returns the progress view of a submission. A
// submission without rows is reported as NotStarted.
func (e *workflowEngine) GetSubmissionProgress(ctx context.Context, submissionID uuid.UUID) (*domain.WorkflowProgressView, error) {
	rows, err := e.rowsOf(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	view := domain.NewWorkflowProgressView(submissionID, rows)
	return &view, nil
}

// GetCurrentSteps returns the reached rows that are still open.
func (e *workflowEngine) GetCurrentSteps(ctx context.Context, submissionID uuid.UUID) ([]domain.SubmissionWorkflowProgress, error) {
	rows, err := e.rowsOf(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if domain.IsWorkflowRejected(rows) {
		return nil, nil
	}
	return slices.DeleteFunc(rows, func(r domain.SubmissionWorkflowProgress) bool {
		return !r.IsActive() || !r.Status.IsActionable()
	}), nil
}

func (e *workflowEngine) GetStepProgress(ctx context.Context, progressID uuid.UUID) (*domain.SubmissionWorkflowProgress, error) {
	return e.progress.GetProgress(ctx, progressID)
}

func (e *workflowEngine) GetWorkflowStatus(ctx context.Context, submissionID uuid.UUID) (domain.WorkflowStatus, error) {
	rows, err := e.rowsOf(ctx, submissionID)
	if err != nil {
		return "", err
	}
	return domain.SummarizeWorkflow(rows), nil
}

func (e *workflowEngine) IsWorkflowComplete(ctx context.Context, submissionID uuid.UUID) (bool, error) {
	rows, err := e.rowsOf(ctx, submissionID)
	if err != nil {
		return false, err
	}
	return domain.IsWorkflowComplete(rows), nil
}

func (e *workflowEngine) CheckStepDependencies(ctx context.Context, progressID uuid.UUID) (*DependencyCheck, error) {
	row, rows, err := e.rowWithSiblings(ctx, progressID)
	if err != nil {
		return nil, err
	}
	unmet := row.UnmetDependencies(rows)
	return &DependencyCheck{ProgressID: progressID, Met: len(unmet) == 0, Unmet: unmet}, nil
}

// CanActorActOnStep reports whether an actor operation by actor on the row
// would pass every precondition.
func (e *workflowEngine) CanActorActOnStep(ctx context.Context, actor domain.ActorContext, progressID uuid.UUID) (bool, error) {
	row, rows, err := e.rowWithSiblings(ctx, progressID)
	if err != nil {
		return false, err
	}
	return checkActor("", &transition{rows: rows}, row, actor, true) == nil, nil
}

// CanActorActOnTarget reports whether actor holds an open, reached row on
// the given target. A field is also reachable through a row on its section.
func (e *workflowEngine) CanActorActOnTarget(
	ctx context.Context,
	actor domain.ActorContext,
	submissionID uuid.UUID,
	targetType domain.TargetType,
	targetID *uuid.UUID,
) (bool, error) {
	rows, err := e.rowsOf(ctx, submissionID)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 || domain.IsWorkflowRejected(rows) {
		return false, nil
	}

	var section *uuid.UUID
	if targetType == domain.TargetField && targetID != nil {
		sub, err := e.submissions.GetSubmission(ctx, submissionID)
		if err != nil {
			return false, err
		}
		binding, err := e.templates.GetTemplateBinding(ctx, sub.TemplateID)
		if err != nil && !domain.IsNotFound(err) {
			return false, err
		}
		if binding != nil {
			if s, ok := binding.FieldSections[*targetID]; ok {
				section = &s
			}
		}
	}

	t := &transition{rows: rows}
	for i := range rows {
		r := &rows[i]
		if !targetMatches(r, targetType, targetID, section) {
			continue
		}
		if checkActor("", t, r, actor, true) == nil {
			return true, nil
		}
	}
	return false, nil
}

func targetMatches(r *domain.SubmissionWorkflowProgress, targetType domain.TargetType, targetID, section *uuid.UUID) bool {
	sameID := func(a, b *uuid.UUID) bool {
		return a == nil && b == nil || a != nil && b != nil && *a == *b
	}
	if r.TargetType == targetType && (targetType == domain.TargetSubmission || sameID(r.TargetID, targetID)) {
		return true
	}
	return section != nil && r.TargetType == domain.TargetSection && sameID(r.TargetID, section)
}

// GetPendingActions lists the reached, open rows actor may act on, soonest
// due first. Rows of rejected submissions are left out.
func (e *workflowEngine) GetPendingActions(ctx context.Context, actor domain.ActorContext) ([]domain.SubmissionWorkflowProgress, error) {
	if actor.IsSystem() {
		return nil, nil
	}
	candidates, err := e.progress.FindActionable(ctx, ports.ActionableFilter{
		UserID:       actor.UserID,
		RoleIDs:      actor.RoleIDs,
		DepartmentID: actor.DepartmentID,
	})
	if err != nil {
		return nil, err
	}

	rejected := make(map[uuid.UUID]bool)
	var pending []domain.SubmissionWorkflowProgress
	for _, c := range candidates {
		isRejected, seen := rejected[c.SubmissionID]
		if !seen {
			rows, err := e.progress.ListBySubmission(ctx, c.SubmissionID)
			if err != nil {
				return nil, err
			}
			isRejected = domain.IsWorkflowRejected(rows)
			rejected[c.SubmissionID] = isRejected
		}
		if !isRejected && c.CanBeActedOnBy(actor) {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

func (e *workflowEngine) CountPendingActions(ctx context.Context, actor domain.ActorContext) (int, error) {
	pending, err := e.GetPendingActions(ctx, actor)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// rowsOf returns the submission's rows, failing with NotFound when the
// submission itself is unknown.
func (e *workflowEngine) rowsOf(ctx context.Context, submissionID uuid.UUID) ([]domain.SubmissionWorkflowProgress, error) {
	rows, err := e.progress.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if _, err := e.submissions.GetSubmission(ctx, submissionID); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (e *workflowEngine) rowWithSiblings(ctx context.Context, progressID uuid.UUID) (*domain.SubmissionWorkflowProgress, []domain.SubmissionWorkflowProgress, error) {
	target, err := e.progress.GetProgress(ctx, progressID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := e.progress.ListBySubmission(ctx, target.SubmissionID)
	if err != nil {
		return nil, nil, err
	}
	for i := range rows {
		if rows[i].ID == progressID {
			return &rows[i], rows, nil
		}
	}
	return target, rows, nil
}
