package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestProgressStatus_Classes(t *testing.T) {
	for _, s := range []ProgressStatus{StatusPending, StatusInProgress} {
		assert.True(t, s.IsActionable(), s)
		assert.False(t, s.IsTerminalSuccess(), s)
	}
	for _, s := range []ProgressStatus{StatusCompleted, StatusApproved, StatusSkipped} {
		assert.True(t, s.IsTerminal(), s)
		assert.True(t, s.IsTerminalSuccess(), s)
	}
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusRejected.IsTerminalSuccess())
}

func TestProgress_ActivateComputesDueDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	days := 3
	user := uuid.New()
	p := NewProgress(uuid.New(), StepSnapshot{StepOrder: 1, DueDays: &days}, now)
	assert.False(t, p.IsActive())

	p.Activate(now, &user)
	assert.True(t, p.IsActive())
	assert.Equal(t, now.AddDate(0, 0, 3), *p.DueDate)
	assert.False(t, p.IsOverdue(now))
	assert.True(t, p.IsOverdue(now.AddDate(0, 0, 4)))

	noDue := NewProgress(uuid.New(), StepSnapshot{StepOrder: 1}, now)
	noDue.Activate(now, nil)
	assert.Nil(t, noDue.DueDate)
	assert.False(t, noDue.IsOverdue(now.AddDate(1, 0, 0)))
}

func TestProgress_CanBeActedOnBy(t *testing.T) {
	user, other, delegate := uuid.New(), uuid.New(), uuid.New()
	role, dept := uuid.New(), uuid.New()

	assigned := SubmissionWorkflowProgress{AssignedTo: &user, StepSnapshot: StepSnapshot{Assignee: NewAssigneeRule(UserAssignee{UserID: user})}}
	assert.True(t, assigned.CanBeActedOnBy(ActorContext{UserID: user}))
	assert.False(t, assigned.CanBeActedOnBy(ActorContext{UserID: other}))

	assigned.DelegatedTo = &delegate
	assert.True(t, assigned.CanBeActedOnBy(ActorContext{UserID: delegate}))

	byRole := SubmissionWorkflowProgress{StepSnapshot: StepSnapshot{Assignee: NewAssigneeRule(RoleAssignee{RoleID: role})}}
	assert.True(t, byRole.CanBeActedOnBy(ActorContext{UserID: other, RoleIDs: []uuid.UUID{uuid.New(), role}}))
	assert.False(t, byRole.CanBeActedOnBy(ActorContext{UserID: other}))

	byDept := SubmissionWorkflowProgress{StepSnapshot: StepSnapshot{Assignee: NewAssigneeRule(DepartmentAssignee{DepartmentID: dept})}}
	assert.True(t, byDept.CanBeActedOnBy(ActorContext{UserID: other, DepartmentID: &dept}))
	assert.False(t, byDept.CanBeActedOnBy(ActorContext{UserID: other, RoleIDs: []uuid.UUID{dept}}))

	assert.False(t, byRole.CanBeActedOnBy(ActorContext{RoleIDs: []uuid.UUID{role}}), "system actor never passes")
}

func TestProgress_DependenciesMet(t *testing.T) {
	a, b, gone := uuid.New(), uuid.New(), uuid.New()
	rows := []SubmissionWorkflowProgress{
		{StepSnapshot: StepSnapshot{StepID: a}, Status: StatusApproved},
		{StepSnapshot: StepSnapshot{StepID: b}, Status: StatusPending},
	}
	p := SubmissionWorkflowProgress{StepSnapshot: StepSnapshot{DependsOnStepIDs: []uuid.UUID{a}}}
	assert.True(t, p.DependenciesMet(rows))

	p.DependsOnStepIDs = []uuid.UUID{a, b, gone}
	assert.False(t, p.DependenciesMet(rows))
	assert.Equal(t, []uuid.UUID{b}, p.UnmetDependencies(rows))

	rows[1].Status = StatusSkipped
	assert.True(t, p.DependenciesMet(rows))
}

func TestSummarizeWorkflow(t *testing.T) {
	row := func(order int, status ProgressStatus, mandatory bool) SubmissionWorkflowProgress {
		return SubmissionWorkflowProgress{StepSnapshot: StepSnapshot{StepOrder: order, IsMandatory: mandatory}, Status: status}
	}
	assert.Equal(t, WorkflowNotStarted, SummarizeWorkflow(nil))
	assert.Equal(t, WorkflowPending, SummarizeWorkflow([]SubmissionWorkflowProgress{row(1, StatusPending, true)}))
	assert.Equal(t, WorkflowInProgress, SummarizeWorkflow([]SubmissionWorkflowProgress{row(1, StatusInProgress, true)}))
	assert.Equal(t, WorkflowInProgress, SummarizeWorkflow([]SubmissionWorkflowProgress{row(1, StatusApproved, true), row(2, StatusPending, true)}))
	assert.Equal(t, WorkflowCompleted, SummarizeWorkflow([]SubmissionWorkflowProgress{row(1, StatusApproved, true), row(2, StatusPending, false)}))
	assert.Equal(t, WorkflowRejected, SummarizeWorkflow([]SubmissionWorkflowProgress{row(1, StatusApproved, true), row(2, StatusRejected, true)}))

	optionalOnly := []SubmissionWorkflowProgress{row(1, StatusCompleted, false), row(2, StatusPending, false)}
	assert.False(t, IsWorkflowComplete(optionalOnly))
	optionalOnly[1].Status = StatusSkipped
	assert.True(t, IsWorkflowComplete(optionalOnly))
}

func TestNewWorkflowProgressView(t *testing.T) {
	now := time.Now()
	rows := []SubmissionWorkflowProgress{
		{StepSnapshot: StepSnapshot{StepOrder: 3, StepName: "Sign", IsMandatory: true}, Status: StatusPending},
		{StepSnapshot: StepSnapshot{StepOrder: 1, StepName: "Review", IsMandatory: true}, Status: StatusCompleted, AssignedDate: &now},
		{StepSnapshot: StepSnapshot{StepOrder: 2, StepName: "Approve", IsMandatory: true}, Status: StatusPending, AssignedDate: &now},
	}
	view := NewWorkflowProgressView(uuid.New(), rows)
	assert.Equal(t, WorkflowInProgress, view.Status)
	assert.Equal(t, 3, view.TotalSteps)
	assert.Equal(t, 1, view.CompletedSteps)
	assert.Equal(t, 2, view.CurrentStepOrder)
	assert.Equal(t, []string{"Review", "Approve", "Sign"}, []string{view.Steps[0].StepName, view.Steps[1].StepName, view.Steps[2].StepName})
}

func TestProgress_ReadOnlyChecksWorkOnMapValues(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user := uuid.New()
	first := NewProgress(uuid.New(), StepSnapshot{StepID: uuid.New(), StepOrder: 1}, now)
	first.Activate(now.Add(-48*time.Hour), &user)
	due := now.Add(-time.Hour)
	first.DueDate = &due
	second := NewProgress(first.SubmissionID, StepSnapshot{StepID: uuid.New(), StepOrder: 2, DependsOnStepIDs: []uuid.UUID{first.StepID}}, now)

	byName := map[string]SubmissionWorkflowProgress{"first": first, "second": second}
	rows := []SubmissionWorkflowProgress{first, second}
	assert.True(t, byName["first"].IsActive())
	assert.True(t, byName["first"].IsOverdue(now))
	assert.True(t, byName["first"].CanBeActedOnBy(ActorContext{UserID: user}))
	assert.False(t, byName["second"].DependenciesMet(rows))
	assert.Equal(t, []uuid.UUID{first.StepID}, byName["second"].UnmetDependencies(rows))
}
