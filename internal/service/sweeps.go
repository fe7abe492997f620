package service

import (
	"context"
	"errors"
	"time"

	"go-stepflow/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errNoEscalationTarget = errors.New("no active user holds the escalation role")

// SweepResult counts what one background run did.
type SweepResult struct {
	Examined int `json:"examined"`
	Applied  int `json:"applied"`
	// Unassigned counts overdue rows whose escalation role has no holder.
	Unassigned int `json:"unassigned"`
	Failed     int `json:"failed"`
}

func (r *SweepResult) add(other SweepResult) {
	r.Examined += other.Examined
	r.Applied += other.Applied
	r.Unassigned += other.Unassigned
	r.Failed += other.Failed
}

// ProcessEscalations hands every overdue row with an escalation role to the
// first active holder of that role. Rows are handled independently; one
// failure never stops the sweep. Already escalated rows are not candidates,
// so repeated runs are no-ops.
func (e *workflowEngine) ProcessEscalations(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := e.opts.now()
	candidates, err := e.progress.FindOverdue(ctx, now)
	if err != nil {
		return res, err
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Examined++
		logger := e.opts.logger.With(
			zap.String("progress_id", c.ID.String()),
			zap.String("submission_id", c.SubmissionID.String()))

		err := e.escalate(ctx, c.ID, now)
		switch {
		case err == nil:
			res.Applied++
			e.opts.metrics.Escalations.WithLabelValues("escalated").Inc()
		case errors.Is(err, errStale):
		case errors.Is(err, errNoEscalationTarget):
			res.Unassigned++
			e.opts.metrics.Escalations.WithLabelValues("no_assignee").Inc()
			logger.Warn("overdue step has nobody to escalate to", zap.String("role_id", c.EscalationRoleID.String()))
		default:
			res.Failed++
			e.opts.metrics.Escalations.WithLabelValues("error").Inc()
			logger.Error("escalation failed", zap.Error(err))
		}
	}
	if res.Examined > 0 {
		e.opts.logger.Info("escalation sweep finished",
			zap.Int("examined", res.Examined),
			zap.Int("escalated", res.Applied),
			zap.Int("unassigned", res.Unassigned),
			zap.Int("failed", res.Failed))
	}
	return res, nil
}

func (e *workflowEngine) escalate(ctx context.Context, progressID uuid.UUID, now time.Time) error {
	_, _, err := e.runTransition(ctx, "escalate step", progressID, func(t *transition, row *domain.SubmissionWorkflowProgress) error {
		if !row.IsOverdue(now) || !row.IsActive() || row.EscalatedAt != nil || row.EscalationRoleID == nil ||
			domain.IsWorkflowRejected(t.rows) {
			return errStale
		}
		holder, err := e.identity.FirstActiveUserWithRole(ctx, *row.EscalationRoleID)
		if err != nil {
			return err
		}
		if holder == uuid.Nil {
			return errNoEscalationTarget
		}

		previous := row.AssignedTo
		row.DelegatedBy = nil
		row.DelegatedTo = &holder
		row.DelegatedDate = &now
		row.DelegationReason = EscalationReason
		row.AssignedTo = &holder
		row.EscalatedAt = &now
		t.touch(row.ID)
		t.escalated = &domain.StepEscalatedEvent{
			SubmissionID: row.SubmissionID,
			ProgressID:   row.ID,
			StepName:     row.StepName,
			PreviousUser: previous,
			EscalatedTo:  holder,
			DueDate:      row.DueDate,
		}
		return nil
	})
	return err
}

func (e *workflowEngine) ProcessAutoApprovals(ctx context.Context) (SweepResult, error) {
	return e.autoApprove(ctx, nil)
}

func (e *workflowEngine) EvaluateAutoApprovals(ctx context.Context, submissionID uuid.UUID) (SweepResult, error) {
	return e.autoApprove(ctx, &submissionID)
}

// autoApprove approves every reachable row whose condition holds. An
// approval can activate further conditional rows, so passes repeat until one
// approves nothing.
func (e *workflowEngine) autoApprove(ctx context.Context, submissionID *uuid.UUID) (SweepResult, error) {
	var total SweepResult
	for {
		pass, err := e.autoApprovePass(ctx, submissionID)
		total.add(pass)
		if err != nil {
			return total, err
		}
		if pass.Applied == 0 {
			break
		}
	}
	if total.Applied > 0 || total.Failed > 0 {
		e.opts.logger.Info("auto-approval finished",
			zap.Int("examined", total.Examined),
			zap.Int("approved", total.Applied),
			zap.Int("failed", total.Failed))
	}
	return total, nil
}

func (e *workflowEngine) autoApprovePass(ctx context.Context, submissionID *uuid.UUID) (SweepResult, error) {
	var res SweepResult
	candidates, err := e.progress.FindAutoApprovable(ctx, submissionID)
	if err != nil {
		return res, err
	}

	responses := make(map[uuid.UUID][]domain.Response)
	for _, c := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Examined++
		logger := e.opts.logger.With(
			zap.String("progress_id", c.ID.String()),
			zap.String("submission_id", c.SubmissionID.String()))

		rs, ok := responses[c.SubmissionID]
		if !ok {
			rs, err = e.responses.ListResponses(ctx, c.SubmissionID)
			if err != nil {
				res.Failed++
				e.opts.metrics.AutoApprovals.WithLabelValues("error").Inc()
				logger.Error("loading responses for auto-approval failed", zap.Error(err))
				continue
			}
			responses[c.SubmissionID] = rs
		}
		if c.AutoApprove == nil || !c.AutoApprove.Evaluate(rs) {
			continue
		}

		err := e.approveByCondition(ctx, c.ID, rs)
		switch {
		case err == nil:
			res.Applied++
			e.opts.metrics.AutoApprovals.WithLabelValues("approved").Inc()
			logger.Info("step auto-approved", zap.String("condition", c.AutoApprove.String()))
		case errors.Is(err, errStale):
		default:
			res.Failed++
			e.opts.metrics.AutoApprovals.WithLabelValues("error").Inc()
			logger.Error("auto-approval failed", zap.Error(err))
		}
	}
	return res, nil
}

func (e *workflowEngine) approveByCondition(ctx context.Context, progressID uuid.UUID, responses []domain.Response) error {
	_, _, err := e.runTransition(ctx, "auto-approve step", progressID, func(t *transition, row *domain.SubmissionWorkflowProgress) error {
		if !row.Status.IsActionable() || !row.IsActive() || row.AutoApprove == nil ||
			domain.IsWorkflowRejected(t.rows) || !row.DependenciesMet(t.rows) ||
			!row.AutoApprove.Evaluate(responses) {
			return errStale
		}
		now := e.opts.now()
		t.setStatus(row, domain.StatusApproved)
		row.AutoApproved = true
		row.Comments = AutoApprovedComment
		row.ReviewedBy = nil
		row.ReviewedDate = &now
		return e.advance(ctx, t, row, now)
	})
	return err
}
