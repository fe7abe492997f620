package domain

import (
	"slices"

	"github.com/google/uuid"
)

// WorkflowStatus is the overall state of a submission's workflow.
type WorkflowStatus string

const (
	WorkflowNotStarted WorkflowStatus = "NotStarted"
	WorkflowPending    WorkflowStatus = "Pending"
	WorkflowInProgress WorkflowStatus = "InProgress"
	WorkflowCompleted  WorkflowStatus = "Completed"
	WorkflowRejected   WorkflowStatus = "Rejected"
)

// IsWorkflowComplete reports whether every mandatory row is terminal
// success. A workflow without mandatory steps needs all of its rows.
func IsWorkflowComplete(rows []SubmissionWorkflowProgress) bool {
	if len(rows) == 0 {
		return false
	}
	hasMandatory := slices.ContainsFunc(rows, func(r SubmissionWorkflowProgress) bool { return r.IsMandatory })
	for _, r := range rows {
		if (r.IsMandatory || !hasMandatory) && !r.Status.IsTerminalSuccess() {
			return false
		}
	}
	return true
}

func IsWorkflowRejected(rows []SubmissionWorkflowProgress) bool {
	return slices.ContainsFunc(rows, func(r SubmissionWorkflowProgress) bool { return r.Status == StatusRejected })
}

func SummarizeWorkflow(rows []SubmissionWorkflowProgress) WorkflowStatus {
	switch {
	case len(rows) == 0:
		return WorkflowNotStarted
	case IsWorkflowRejected(rows):
		return WorkflowRejected
	case IsWorkflowComplete(rows):
		return WorkflowCompleted
	}
	for _, r := range rows {
		if r.Status == StatusInProgress || r.Status.IsTerminalSuccess() {
			return WorkflowInProgress
		}
	}
	return WorkflowPending
}

// WorkflowProgressView is the progress of one submission, rows ordered by
// step order.
type WorkflowProgressView struct {
	SubmissionID     uuid.UUID                    `json:"submission_id"`
	WorkflowID       uuid.UUID                    `json:"workflow_id"`
	Status           WorkflowStatus               `json:"status"`
	TotalSteps       int                          `json:"total_steps"`
	CompletedSteps   int                          `json:"completed_steps"`
	CurrentStepOrder int                          `json:"current_step_order"` // 0 when nothing is open
	Steps            []SubmissionWorkflowProgress `json:"steps"`
}

func NewWorkflowProgressView(submissionID uuid.UUID, rows []SubmissionWorkflowProgress) WorkflowProgressView {
	SortProgress(rows)
	view := WorkflowProgressView{
		SubmissionID: submissionID,
		Status:       SummarizeWorkflow(rows),
		TotalSteps:   len(rows),
		Steps:        rows,
	}
	for _, r := range rows {
		view.WorkflowID = r.WorkflowID
		if r.Status.IsTerminalSuccess() {
			view.CompletedSteps++
		}
		if view.CurrentStepOrder == 0 && r.IsActive() && r.Status.IsActionable() {
			view.CurrentStepOrder = r.StepOrder
		}
	}
	return view
}

// SortProgress orders rows by step order, then by step name for stable
// output among parallel steps.
func SortProgress(rows []SubmissionWorkflowProgress) {
	slices.SortStableFunc(rows, func(a, b SubmissionWorkflowProgress) int {
		if a.StepOrder != b.StepOrder {
			return a.StepOrder - b.StepOrder
		}
		switch {
		case a.StepName < b.StepName:
			return -1
		case a.StepName > b.StepName:
			return 1
		}
		return 0
	})
}
