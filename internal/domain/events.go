package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepActivatedEvent is published when a step becomes reachable so that the
// assignee can be notified.
type StepActivatedEvent struct {
	SubmissionID uuid.UUID  `json:"submission_id"`
	ProgressID   uuid.UUID  `json:"progress_id"`
	StepID       uuid.UUID  `json:"step_id"`
	StepName     string     `json:"step_name"`
	StepOrder    int        `json:"step_order"`
	AssignedTo   *uuid.UUID `json:"assigned_to,omitempty"` // nil for role/department steps
	DueDate      *time.Time `json:"due_date,omitempty"`
}

// StepEscalatedEvent is published when an overdue step is handed to a
// holder of its escalation role.
type StepEscalatedEvent struct {
	SubmissionID uuid.UUID  `json:"submission_id"`
	ProgressID   uuid.UUID  `json:"progress_id"`
	StepName     string     `json:"step_name"`
	PreviousUser *uuid.UUID `json:"previous_user,omitempty"`
	EscalatedTo  uuid.UUID  `json:"escalated_to"`
	DueDate      *time.Time `json:"due_date,omitempty"`
}

// WorkflowFinishedEvent is published once the submission reaches a final
// workflow outcome.
type WorkflowFinishedEvent struct {
	SubmissionID uuid.UUID        `json:"submission_id"`
	Outcome      SubmissionStatus `json:"outcome"` // Approved or Rejected
	FinishedAt   time.Time        `json:"finished_at"`
}

type SubmissionEventType string

const (
	SubmissionCreated          SubmissionEventType = "created"
	SubmissionResponsesChanged SubmissionEventType = "responses_changed"
)

// SubmissionEvent is emitted by the submission lifecycle service.
type SubmissionEvent struct {
	Type         SubmissionEventType `json:"type"`
	SubmissionID uuid.UUID           `json:"submission_id"`
}
