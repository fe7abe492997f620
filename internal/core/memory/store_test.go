package memory

import (
	"context"
	"testing"
	"time"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.DefinitionRepository = (*Store)(nil)
	_ ports.ProgressRepository   = (*Store)(nil)
	_ ports.SubmissionProvider   = (*Store)(nil)
	_ ports.ResponseStore        = (*Store)(nil)
	_ ports.TemplateProvider     = (*Store)(nil)
	_ ports.IdentityProvider     = (*Store)(nil)
	_ ports.Notifier             = (*Notifier)(nil)
)

func progressRows(submissionID uuid.UUID, n int) []domain.SubmissionWorkflowProgress {
	now := time.Now().UTC()
	rows := make([]domain.SubmissionWorkflowProgress, n)
	for i := range rows {
		rows[i] = domain.NewProgress(submissionID, domain.StepSnapshot{StepID: uuid.New(), StepOrder: i + 1}, now)
	}
	return rows
}

func TestStore_CreateProgressOncePerSubmission(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	sub := uuid.New()

	require.NoError(t, s.CreateProgress(ctx, progressRows(sub, 2)))
	err := s.CreateProgress(ctx, progressRows(sub, 2))
	assert.True(t, domain.IsConflict(err))
	assert.Equal(t, 2, s.ProgressLen())

	rows, err := s.ListBySubmission(ctx, sub)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].StepOrder)
}

func TestStore_SaveTransitionIsVersionGuardedAndAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	rows := progressRows(uuid.New(), 2)
	require.NoError(t, s.CreateProgress(ctx, rows))

	first, second := rows[0], rows[1]
	first.Status = domain.StatusApproved
	require.NoError(t, s.SaveTransition(ctx, ports.NewTransition(rows, []domain.SubmissionWorkflowProgress{first})))

	got, err := s.GetProgress(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)

	// A stale first row must roll back the second row's change too.
	second.Status = domain.StatusCompleted
	stale := rows[0]
	stale.Status = domain.StatusRejected
	err = s.SaveTransition(ctx, ports.NewTransition(rows, []domain.SubmissionWorkflowProgress{second, stale}))
	assert.True(t, domain.IsConflict(err))

	got, err = s.GetProgress(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 1, got.Version)
}

func TestStore_SaveTransitionRejectsDecisionsOnStaleSiblings(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	rows := progressRows(uuid.New(), 2)
	require.NoError(t, s.CreateProgress(ctx, rows))

	// Both writers read the same snapshot and each changes a different row.
	a, b := rows[0], rows[1]
	a.Status = domain.StatusCompleted
	b.Status = domain.StatusCompleted
	require.NoError(t, s.SaveTransition(ctx, ports.NewTransition(rows, []domain.SubmissionWorkflowProgress{a})))

	err := s.SaveTransition(ctx, ports.NewTransition(rows, []domain.SubmissionWorkflowProgress{b}))
	assert.True(t, domain.IsConflict(err), "b was decided on a stale view of a")

	got, err := s.GetProgress(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)

	fresh, err := s.ListBySubmission(ctx, a.SubmissionID)
	require.NoError(t, err)
	require.NoError(t, s.SaveTransition(ctx, ports.NewTransition(fresh, []domain.SubmissionWorkflowProgress{b})))
}

func TestStore_FindActionableOrdersByDueDate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user, role := uuid.New(), uuid.New()
	now := time.Now().UTC()

	rows := progressRows(uuid.New(), 4)
	rows[0].Activate(now, &user)
	rows[1].Assignee = domain.NewAssigneeRule(domain.RoleAssignee{RoleID: role})
	rows[1].Activate(now, nil)
	later := now.Add(time.Hour)
	rows[1].DueDate = &later
	rows[2].Activate(now, &user)
	rows[2].DueDate = &now
	rows[3].AssignedTo = &user // dormant
	require.NoError(t, s.CreateProgress(ctx, rows))

	got, err := s.FindActionable(ctx, ports.ActionableFilter{UserID: user, RoleIDs: []uuid.UUID{role}})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, rows[2].ID, got[0].ID)
	assert.Equal(t, rows[1].ID, got[1].ID)
	assert.Equal(t, rows[0].ID, got[2].ID)
}

func TestStore_FirstActiveUserWithRole(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	role := uuid.New()
	inactive, first, second := uuid.New(), uuid.New(), uuid.New()
	s.PutUser(inactive, false, nil, role)
	s.PutUser(first, true, nil, role)
	s.PutUser(second, true, nil, role)

	got, err := s.FirstActiveUserWithRole(ctx, role)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = s.FirstActiveUserWithRole(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, got)
}

func TestStore_DefinitionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	def := domain.NewWorkflowDefinition("Expense approval", "", uuid.New())
	def.Steps = []domain.WorkflowStep{
		{ID: uuid.New(), Name: "Approve", StepOrder: 2, ActionCode: domain.ActionApprove},
		{ID: uuid.New(), Name: "Review", StepOrder: 1, ActionCode: domain.ActionReview},
	}
	require.NoError(t, s.CreateDefinition(ctx, def))

	got, err := s.GetDefinition(ctx, def.ID)
	require.NoError(t, err)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "Review", got.Steps[0].Name)

	require.NoError(t, s.ReorderSteps(ctx, def.ID, map[uuid.UUID]int{got.Steps[0].ID: 3}))
	got, err = s.GetDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "Approve", got.Steps[0].Name)

	err = s.ReorderSteps(ctx, def.ID, map[uuid.UUID]int{uuid.New(): 1})
	assert.True(t, domain.IsNotFound(err))

	require.NoError(t, s.DeleteDefinition(ctx, def.ID))
	_, err = s.GetStep(ctx, got.Steps[0].ID)
	assert.True(t, domain.IsNotFound(err))
}

func TestStore_DeleteStepDropsDependencies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	reviewID, approveID, otherID := uuid.New(), uuid.New(), uuid.New()
	def := domain.NewWorkflowDefinition("Expense approval", "", uuid.New())
	def.Steps = []domain.WorkflowStep{
		{ID: reviewID, Name: "Review", StepOrder: 1, ActionCode: domain.ActionReview},
		{ID: approveID, Name: "Approve", StepOrder: 2, ActionCode: domain.ActionApprove, DependsOnStepIDs: []uuid.UUID{reviewID, otherID}},
	}
	require.NoError(t, s.CreateDefinition(ctx, def))

	require.NoError(t, s.DeleteStep(ctx, reviewID))
	approve, err := s.GetStep(ctx, approveID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{otherID}, []uuid.UUID(approve.DependsOnStepIDs))

	assert.True(t, domain.IsNotFound(s.DeleteStep(ctx, reviewID)))
}
