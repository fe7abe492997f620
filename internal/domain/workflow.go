package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TargetType is the scope a step acts on.
type TargetType string

const (
	TargetSubmission TargetType = "Submission"
	TargetSection    TargetType = "Section"
	TargetField      TargetType = "Field"
)

func (t TargetType) Valid() bool {
	return t == TargetSubmission || t == TargetSection || t == TargetField
}

// WorkflowDefinition is the reusable ordered template of steps.
type WorkflowDefinition struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	Name        string    `gorm:"type:varchar(200);not null" json:"name"`
	Description string    `gorm:"type:varchar(1000)" json:"description"`
	IsActive    bool      `gorm:"not null;index" json:"is_active"`
	CreatedBy   uuid.UUID `gorm:"type:uuid" json:"created_by"`

	Steps []WorkflowStep `gorm:"foreignKey:WorkflowID;constraint:OnDelete:CASCADE" json:"steps"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WorkflowDefinition) TableName() string { return "workflow_definitions" }

func NewWorkflowDefinition(name, description string, createdBy uuid.UUID) *WorkflowDefinition {
	return &WorkflowDefinition{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
	}
}

// SortSteps orders Steps by StepOrder, keeping insertion order for ties.
func (d *WorkflowDefinition) SortSteps() {
	slices.SortStableFunc(d.Steps, func(a, b WorkflowStep) int { return a.StepOrder - b.StepOrder })
}

// WorkflowStep is one node of a definition.
type WorkflowStep struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key;" json:"id"`
	WorkflowID uuid.UUID  `gorm:"type:uuid;index;not null" json:"workflow_id"`
	StepOrder  int        `gorm:"not null" json:"step_order"`
	Name       string     `gorm:"type:varchar(200);not null" json:"name"`
	ActionCode ActionCode `gorm:"type:varchar(20);not null" json:"action_code"`
	TargetType TargetType `gorm:"type:varchar(20);not null;default:'Submission'" json:"target_type"`
	TargetID   *uuid.UUID `gorm:"type:uuid" json:"target_id,omitempty"`

	Assignee AssigneeRule `gorm:"embedded" json:"assignee"`

	IsMandatory      bool       `gorm:"not null" json:"is_mandatory"`
	IsParallel       bool       `gorm:"not null" json:"is_parallel"`
	DueDays          *int       `json:"due_days,omitempty"`
	EscalationRoleID *uuid.UUID `gorm:"type:uuid" json:"escalation_role_id,omitempty"`
	// ConditionLogic is carried for display; the engine never reads it.
	ConditionLogic   string                         `gorm:"type:text" json:"condition_logic,omitempty"`
	AutoApprove      *AutoApproveCondition          `gorm:"type:jsonb;serializer:json" json:"auto_approve,omitempty"`
	DependsOnStepIDs datatypes.JSONSlice[uuid.UUID] `gorm:"type:jsonb" json:"depends_on_step_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WorkflowStep) TableName() string { return "workflow_steps" }

// StepSnapshot is the copy of a step, joined with its action flags, that a
// progress row carries for its whole life. Later edits to the definition do
// not reach it.
type StepSnapshot struct {
	StepID            uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_progress_submission_step,priority:2" json:"step_id"`
	WorkflowID        uuid.UUID  `gorm:"type:uuid;not null" json:"workflow_id"`
	StepName          string     `gorm:"type:varchar(200)" json:"step_name"`
	StepOrder         int        `gorm:"not null" json:"step_order"`
	ActionCode        ActionCode `gorm:"type:varchar(20);not null" json:"action_code"`
	RequiresSignature bool       `json:"requires_signature"`
	RequiresComment   bool       `json:"requires_comment"`
	AllowDelegate     bool       `json:"allow_delegate"`
	TargetType        TargetType `gorm:"type:varchar(20);not null" json:"target_type"`
	TargetID          *uuid.UUID `gorm:"type:uuid" json:"target_id,omitempty"`

	Assignee AssigneeRule `gorm:"embedded" json:"assignee"`

	IsMandatory      bool                           `json:"is_mandatory"`
	IsParallel       bool                           `json:"is_parallel"`
	DueDays          *int                           `json:"due_days,omitempty"`
	EscalationRoleID *uuid.UUID                     `gorm:"type:uuid" json:"escalation_role_id,omitempty"`
	AutoApprove      *AutoApproveCondition          `gorm:"type:jsonb;serializer:json" json:"auto_approve,omitempty"`
	DependsOnStepIDs datatypes.JSONSlice[uuid.UUID] `gorm:"type:jsonb" json:"depends_on_step_ids,omitempty"`
}

// Snapshot freezes the step together with the flags of its action.
func (s WorkflowStep) Snapshot(action WorkflowAction) StepSnapshot {
	snap := StepSnapshot{
		StepID:            s.ID,
		WorkflowID:        s.WorkflowID,
		StepName:          s.Name,
		StepOrder:         s.StepOrder,
		ActionCode:        s.ActionCode,
		RequiresSignature: action.RequiresSignature,
		RequiresComment:   action.RequiresComment,
		AllowDelegate:     action.AllowDelegate,
		TargetType:        s.TargetType,
		TargetID:          cloneID(s.TargetID),
		Assignee:          s.Assignee,
		IsMandatory:       s.IsMandatory,
		IsParallel:        s.IsParallel,
		EscalationRoleID:  cloneID(s.EscalationRoleID),
		DependsOnStepIDs:  slices.Clone(s.DependsOnStepIDs),
	}
	if s.DueDays != nil {
		d := *s.DueDays
		snap.DueDays = &d
	}
	if s.AutoApprove != nil {
		c := *s.AutoApprove
		snap.AutoApprove = &c
	}
	return snap
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
