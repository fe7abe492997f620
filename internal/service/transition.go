package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errStale is returned by a transition body when re-read state shows the
// transition no longer applies. Sweeps treat it as a no-op.
var errStale = errors.New("transition no longer applies")

// transition is one unit of work over all progress rows of a submission.
// Only rows passed to touch are written back.
type transition struct {
	rows      []domain.SubmissionWorkflowProgress
	changed   map[uuid.UUID]bool
	activated []uuid.UUID
	statuses  []domain.ProgressStatus
	outcome   domain.SubmissionStatus
	escalated *domain.StepEscalatedEvent
	rc        *domain.ResolutionContext
}

func newTransition(rows []domain.SubmissionWorkflowProgress) *transition {
	return &transition{rows: rows, changed: make(map[uuid.UUID]bool)}
}

func (t *transition) row(id uuid.UUID) *domain.SubmissionWorkflowProgress {
	for i := range t.rows {
		if t.rows[i].ID == id {
			return &t.rows[i]
		}
	}
	return nil
}

func (t *transition) touch(id uuid.UUID) { t.changed[id] = true }

// setStatus moves row to status and marks it for saving.
func (t *transition) setStatus(row *domain.SubmissionWorkflowProgress, status domain.ProgressStatus) {
	row.Status = status
	t.statuses = append(t.statuses, status)
	t.touch(row.ID)
}

func (t *transition) changedRows() []domain.SubmissionWorkflowProgress {
	out := make([]domain.SubmissionWorkflowProgress, 0, len(t.changed))
	for _, r := range t.rows {
		if t.changed[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

func (t *transition) stepName(stepID uuid.UUID) string {
	for _, r := range t.rows {
		if r.StepID == stepID {
			return r.StepName
		}
	}
	return stepID.String()
}

// withConflictRetry runs fn until it succeeds, fails with a non-conflict
// error, or the retry budget is spent.
func (e *workflowEngine) withConflictRetry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.retryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.opts.maxRetries)), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if domain.IsConflict(err) {
			e.opts.metrics.StoreConflicts.Inc()
			e.opts.logger.Debug("transition lost a concurrent write, retrying",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// runTransition loads the submission of progressID, applies body to a fresh
// transition and saves the touched rows. The whole cycle is repeated on a
// version conflict, so body must re-check its preconditions every time.
func (e *workflowEngine) runTransition(
	ctx context.Context,
	op string,
	progressID uuid.UUID,
	body func(t *transition, row *domain.SubmissionWorkflowProgress) error,
) (*transition, *domain.SubmissionWorkflowProgress, error) {
	var (
		done   *transition
		result *domain.SubmissionWorkflowProgress
	)
	err := e.withConflictRetry(ctx, op, func() error {
		target, err := e.progress.GetProgress(ctx, progressID)
		if err != nil {
			return err
		}
		rows, err := e.progress.ListBySubmission(ctx, target.SubmissionID)
		if err != nil {
			return fmt.Errorf("%s: loading submission rows: %w", op, err)
		}
		t := newTransition(rows)
		row := t.row(progressID)
		if row == nil {
			return domain.NotFound(op, "workflow progress %s not found", progressID)
		}
		if err := body(t, row); err != nil {
			return err
		}
		if err := e.progress.SaveTransition(ctx, ports.NewTransition(rows, t.changedRows())); err != nil {
			return err
		}
		done = t
		saved := *row
		saved.Version++
		result = &saved
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	e.afterCommit(ctx, done)
	return done, result, nil
}

// advance opens whatever became reachable after row reached terminal
// success. The next order opens only once no mandatory row at row's order is
// still open; dormant rows up to the frontier are (re)checked because their
// dependencies may have just been met.
func (e *workflowEngine) advance(ctx context.Context, t *transition, row *domain.SubmissionWorkflowProgress, now time.Time) error {
	if domain.IsWorkflowRejected(t.rows) {
		return nil
	}
	frontier := 0
	mandatoryOpen := false
	next := 0
	for _, r := range t.rows {
		if r.IsActive() && r.StepOrder > frontier {
			frontier = r.StepOrder
		}
		if r.StepOrder == row.StepOrder && r.IsMandatory && r.Status.IsActionable() {
			mandatoryOpen = true
		}
		if r.StepOrder > row.StepOrder && (next == 0 || r.StepOrder < next) {
			next = r.StepOrder
		}
	}
	if !mandatoryOpen && next > frontier {
		frontier = next
	}
	if err := e.activateReachable(ctx, t, frontier, now); err != nil {
		return err
	}
	if domain.IsWorkflowComplete(t.rows) {
		t.outcome = domain.SubmissionApproved
	}
	return nil
}

// activateReachable activates every dormant pending row at or below frontier
// whose dependencies are met, resolving its assignee.
func (e *workflowEngine) activateReachable(ctx context.Context, t *transition, frontier int, now time.Time) error {
	var candidates []int
	for i := range t.rows {
		r := &t.rows[i]
		if !r.IsActive() && r.Status == domain.StatusPending && r.StepOrder <= frontier && r.DependenciesMet(t.rows) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	if t.rc == nil {
		rc, err := e.resolutionContext(ctx, t.rows[0].SubmissionID)
		if err != nil {
			return err
		}
		t.rc = rc
	}
	rc := *t.rc
	rc.Rows = t.rows
	for _, i := range candidates {
		r := &t.rows[i]
		r.Activate(now, domain.ResolveAssignee(r.Assignee, r.StepOrder, rc))
		t.touch(r.ID)
		t.activated = append(t.activated, r.ID)
	}
	return nil
}

func (e *workflowEngine) resolutionContext(ctx context.Context, submissionID uuid.UUID) (*domain.ResolutionContext, error) {
	sub, err := e.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("loading submission %s: %w", submissionID, err)
	}
	responses, err := e.responses.ListResponses(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("loading responses of %s: %w", submissionID, err)
	}
	return &domain.ResolutionContext{Submission: *sub, Responses: responses}, nil
}

// afterCommit runs the side effects of a committed transition. Failures are
// logged; the transition itself already stands.
func (e *workflowEngine) afterCommit(ctx context.Context, t *transition) {
	if t == nil {
		return
	}
	logger := e.opts.logger
	for _, status := range t.statuses {
		e.opts.metrics.StepTransitions.WithLabelValues(string(status)).Inc()
	}
	for _, id := range t.activated {
		r := t.row(id)
		event := domain.StepActivatedEvent{
			SubmissionID: r.SubmissionID,
			ProgressID:   r.ID,
			StepID:       r.StepID,
			StepName:     r.StepName,
			StepOrder:    r.StepOrder,
			AssignedTo:   r.AssignedTo,
			DueDate:      r.DueDate,
		}
		if err := e.notifier.PublishStepActivated(ctx, event); err != nil {
			logger.Warn("failed to publish step activation",
				zap.String("progress_id", r.ID.String()), zap.Error(err))
		}
	}
	if t.escalated != nil {
		if err := e.notifier.PublishStepEscalated(ctx, *t.escalated); err != nil {
			logger.Warn("failed to publish step escalation",
				zap.String("progress_id", t.escalated.ProgressID.String()), zap.Error(err))
		}
	}
	if t.outcome != "" && len(t.rows) > 0 {
		e.finish(ctx, t.rows[0].SubmissionID, t.outcome)
	}
}

func (e *workflowEngine) finish(ctx context.Context, submissionID uuid.UUID, outcome domain.SubmissionStatus) {
	logger := e.opts.logger.With(zap.String("submission_id", submissionID.String()))
	if err := e.submissions.SetSubmissionStatus(ctx, submissionID, outcome); err != nil {
		logger.Error("failed to record submission outcome",
			zap.String("outcome", string(outcome)), zap.Error(err))
	}
	e.opts.metrics.WorkflowsFinished.WithLabelValues(string(outcome)).Inc()
	event := domain.WorkflowFinishedEvent{SubmissionID: submissionID, Outcome: outcome, FinishedAt: e.opts.now()}
	if err := e.notifier.PublishWorkflowFinished(ctx, event); err != nil {
		logger.Warn("failed to publish workflow outcome", zap.Error(err))
	}
	logger.Info("workflow finished", zap.String("outcome", string(outcome)))
}
