package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActionCode names the kind of work a step asks for. The set is closed.
type ActionCode string

const (
	ActionFill    ActionCode = "Fill"
	ActionSign    ActionCode = "Sign"
	ActionApprove ActionCode = "Approve"
	ActionReject  ActionCode = "Reject"
	ActionReview  ActionCode = "Review"
	ActionVerify  ActionCode = "Verify"
)

func (c ActionCode) Valid() bool {
	switch c {
	case ActionFill, ActionSign, ActionApprove, ActionReject, ActionReview, ActionVerify:
		return true
	}
	return false
}

// IsApprovalFamily reports whether completing a step of this kind records
// an approval decision rather than plain completion.
func (c ActionCode) IsApprovalFamily() bool {
	return c == ActionApprove || c == ActionReject
}

// WorkflowAction is one row of the action catalog.
type WorkflowAction struct {
	ID                uuid.UUID  `gorm:"type:uuid;primary_key;" json:"id"`
	Code              ActionCode `gorm:"type:varchar(20);uniqueIndex;not null" json:"code"`
	Name              string     `gorm:"type:varchar(100);not null" json:"name"`
	Description       string     `gorm:"type:varchar(500)" json:"description"`
	RequiresSignature bool       `gorm:"default:false" json:"requires_signature"`
	RequiresComment   bool       `gorm:"default:false" json:"requires_comment"`
	AllowDelegate     bool       `gorm:"not null" json:"allow_delegate"`
	DisplayOrder      int        `json:"display_order"`
	IsActive          bool       `gorm:"not null" json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (WorkflowAction) TableName() string { return "workflow_actions" }

// DefaultActions returns the seeded catalog. IDs are derived from the code
// so that seeding is repeatable across stores.
func DefaultActions() []WorkflowAction {
	mk := func(code ActionCode, name, desc string, order int, sig, comment, delegate bool) WorkflowAction {
		return WorkflowAction{
			ID:                uuid.NewSHA1(uuid.NameSpaceOID, []byte("workflow-action:"+string(code))),
			Code:              code,
			Name:              name,
			Description:       desc,
			RequiresSignature: sig,
			RequiresComment:   comment,
			AllowDelegate:     delegate,
			DisplayOrder:      order,
			IsActive:          true,
		}
	}
	return []WorkflowAction{
		mk(ActionFill, "Fill", "Fill in the assigned section or field", 1, false, false, true),
		mk(ActionSign, "Sign", "Sign the submission", 2, true, false, false),
		mk(ActionApprove, "Approve", "Approve the submission", 3, false, false, true),
		mk(ActionReject, "Reject", "Reject the submission", 4, false, true, true),
		mk(ActionReview, "Review", "Review the submission", 5, false, false, true),
		mk(ActionVerify, "Verify", "Verify the submitted information", 6, false, false, true),
	}
}
