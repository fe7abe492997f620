package domain

import (
	"time"

	"github.com/google/uuid"
)

type ProgressStatus string

const (
	StatusPending    ProgressStatus = "Pending"
	StatusInProgress ProgressStatus = "InProgress"
	StatusCompleted  ProgressStatus = "Completed"
	StatusApproved   ProgressStatus = "Approved"
	StatusRejected   ProgressStatus = "Rejected"
	StatusSkipped    ProgressStatus = "Skipped"
)

// IsActionable reports whether the row can still transition.
func (s ProgressStatus) IsActionable() bool {
	return s == StatusPending || s == StatusInProgress
}

func (s ProgressStatus) IsTerminal() bool {
	return !s.IsActionable()
}

func (s ProgressStatus) IsTerminalSuccess() bool {
	return s == StatusCompleted || s == StatusApproved || s == StatusSkipped
}

// SubmissionWorkflowProgress is the runtime state of one step for one
// submission. Rows are created together when the workflow is initialized and
// are never re-created.
type SubmissionWorkflowProgress struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	SubmissionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_progress_submission_step,priority:1" json:"submission_id"`

	StepSnapshot `gorm:"embedded"`

	Status       ProgressStatus `gorm:"type:varchar(20);index;default:'Pending'" json:"status"`
	AssignedTo   *uuid.UUID     `gorm:"type:uuid;index" json:"assigned_to,omitempty"`
	AssignedDate *time.Time     `json:"assigned_date,omitempty"`
	DueDate      *time.Time     `gorm:"index" json:"due_date,omitempty"`

	ReviewedBy   *uuid.UUID `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedDate *time.Time `json:"reviewed_date,omitempty"`
	Comments     string     `gorm:"type:text" json:"comments,omitempty"`
	AutoApproved bool       `gorm:"default:false" json:"auto_approved"`

	SignatureType   string     `gorm:"type:varchar(50)" json:"signature_type,omitempty"`
	SignatureData   string     `gorm:"type:text" json:"signature_data,omitempty"`
	SignatureSource string     `gorm:"type:varchar(100)" json:"signature_source,omitempty"`
	SignatureDate   *time.Time `json:"signature_date,omitempty"`

	DelegatedBy      *uuid.UUID `gorm:"type:uuid" json:"delegated_by,omitempty"`
	DelegatedTo      *uuid.UUID `gorm:"type:uuid;index" json:"delegated_to,omitempty"`
	DelegatedDate    *time.Time `json:"delegated_date,omitempty"`
	DelegationReason string     `gorm:"type:varchar(500)" json:"delegation_reason,omitempty"`
	EscalatedAt      *time.Time `json:"escalated_at,omitempty"`

	Version int `gorm:"default:1" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SubmissionWorkflowProgress) TableName() string { return "submission_workflow_progress" }

func NewProgress(submissionID uuid.UUID, snap StepSnapshot, now time.Time) SubmissionWorkflowProgress {
	return SubmissionWorkflowProgress{
		ID:           uuid.New(),
		SubmissionID: submissionID,
		StepSnapshot: snap,
		Status:       StatusPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsActive reports whether the row has been reached by the workflow.
func (p SubmissionWorkflowProgress) IsActive() bool {
	return p.AssignedDate != nil
}

func (p SubmissionWorkflowProgress) IsOverdue(now time.Time) bool {
	return p.Status.IsActionable() && p.DueDate != nil && p.DueDate.Before(now)
}

// Activate marks the row as reached. DueDate is derived from the snapshot's
// DueDays.
func (p *SubmissionWorkflowProgress) Activate(now time.Time, assignee *uuid.UUID) {
	p.AssignedDate = &now
	p.AssignedTo = assignee
	if p.DueDays != nil {
		due := now.AddDate(0, 0, *p.DueDays)
		p.DueDate = &due
	}
}

// CanBeActedOnBy is the authorization rule for actor operations: the
// resolved or delegated user, or a current holder of the rule's role or
// department.
func (p SubmissionWorkflowProgress) CanBeActedOnBy(actor ActorContext) bool {
	if actor.UserID == uuid.Nil {
		return false
	}
	if p.AssignedTo != nil && *p.AssignedTo == actor.UserID {
		return true
	}
	if p.DelegatedTo != nil && *p.DelegatedTo == actor.UserID {
		return true
	}
	switch p.Assignee.Type {
	case AssigneeRole:
		return p.Assignee.RoleID != nil && actor.HasRole(*p.Assignee.RoleID)
	case AssigneeDepartment:
		return p.Assignee.DepartmentID != nil && actor.InDepartment(*p.Assignee.DepartmentID)
	}
	return false
}

// DependenciesMet reports whether every step this row depends on is in a
// terminal success state. References to steps that are not part of the
// submission's row set are ignored; the validator reports them as warnings.
func (p SubmissionWorkflowProgress) DependenciesMet(rows []SubmissionWorkflowProgress) bool {
	return len(p.UnmetDependencies(rows)) == 0
}

func (p SubmissionWorkflowProgress) UnmetDependencies(rows []SubmissionWorkflowProgress) []uuid.UUID {
	var unmet []uuid.UUID
	for _, dep := range p.DependsOnStepIDs {
		met := true
		for i := range rows {
			if rows[i].StepID == dep {
				met = rows[i].Status.IsTerminalSuccess()
				break
			}
		}
		if !met {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}
