package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type AssigneeType string

const (
	AssigneeRole          AssigneeType = "Role"
	AssigneeUser          AssigneeType = "User"
	AssigneeDepartment    AssigneeType = "Department"
	AssigneeFieldValue    AssigneeType = "FieldValue"
	AssigneeSubmitter     AssigneeType = "Submitter"
	AssigneePreviousActor AssigneeType = "PreviousActor"
)

// Assignee is the decoded assignee rule of a step. Only the variants in this
// file implement it.
type Assignee interface {
	Type() AssigneeType
	sealed()
}

type RoleAssignee struct{ RoleID uuid.UUID }
type UserAssignee struct{ UserID uuid.UUID }
type DepartmentAssignee struct{ DepartmentID uuid.UUID }
type FieldValueAssignee struct{ FieldID uuid.UUID }
type SubmitterAssignee struct{}
type PreviousActorAssignee struct{}

func (RoleAssignee) Type() AssigneeType          { return AssigneeRole }
func (UserAssignee) Type() AssigneeType          { return AssigneeUser }
func (DepartmentAssignee) Type() AssigneeType    { return AssigneeDepartment }
func (FieldValueAssignee) Type() AssigneeType    { return AssigneeFieldValue }
func (SubmitterAssignee) Type() AssigneeType     { return AssigneeSubmitter }
func (PreviousActorAssignee) Type() AssigneeType { return AssigneePreviousActor }

func (RoleAssignee) sealed()          {}
func (UserAssignee) sealed()          {}
func (DepartmentAssignee) sealed()    {}
func (FieldValueAssignee) sealed()    {}
func (SubmitterAssignee) sealed()     {}
func (PreviousActorAssignee) sealed() {}

// AssigneeRule is the persisted column form of an Assignee. Exactly the
// reference matching Type is populated; use NewAssigneeRule to build one.
type AssigneeRule struct {
	Type         AssigneeType `gorm:"column:assignee_type;type:varchar(20);not null" json:"type"`
	RoleID       *uuid.UUID   `gorm:"column:assignee_role_id;type:uuid" json:"role_id,omitempty"`
	UserID       *uuid.UUID   `gorm:"column:assignee_user_id;type:uuid" json:"user_id,omitempty"`
	DepartmentID *uuid.UUID   `gorm:"column:assignee_department_id;type:uuid" json:"department_id,omitempty"`
	FieldID      *uuid.UUID   `gorm:"column:assignee_field_id;type:uuid" json:"field_id,omitempty"`
}

func NewAssigneeRule(a Assignee) AssigneeRule {
	rule := AssigneeRule{Type: a.Type()}
	switch v := a.(type) {
	case RoleAssignee:
		rule.RoleID = &v.RoleID
	case UserAssignee:
		rule.UserID = &v.UserID
	case DepartmentAssignee:
		rule.DepartmentID = &v.DepartmentID
	case FieldValueAssignee:
		rule.FieldID = &v.FieldID
	}
	return rule
}

// Variant decodes the rule. It fails when the type is unknown, when the
// reference required by the type is missing, or when a reference belonging
// to another type is set.
func (r AssigneeRule) Variant() (Assignee, error) {
	set := map[AssigneeType]bool{
		AssigneeRole:       r.RoleID != nil && *r.RoleID != uuid.Nil,
		AssigneeUser:       r.UserID != nil && *r.UserID != uuid.Nil,
		AssigneeDepartment: r.DepartmentID != nil && *r.DepartmentID != uuid.Nil,
		AssigneeFieldValue: r.FieldID != nil && *r.FieldID != uuid.Nil,
	}
	var extra []string
	for t, ok := range set {
		if ok && t != r.Type {
			extra = append(extra, string(t))
		}
	}
	if len(extra) > 0 {
		return nil, fmt.Errorf("assignee type %s carries references for %s", r.Type, strings.Join(extra, ", "))
	}

	switch r.Type {
	case AssigneeRole:
		if !set[AssigneeRole] {
			return nil, fmt.Errorf("role assignee requires a role id")
		}
		return RoleAssignee{RoleID: *r.RoleID}, nil
	case AssigneeUser:
		if !set[AssigneeUser] {
			return nil, fmt.Errorf("user assignee requires a user id")
		}
		return UserAssignee{UserID: *r.UserID}, nil
	case AssigneeDepartment:
		if !set[AssigneeDepartment] {
			return nil, fmt.Errorf("department assignee requires a department id")
		}
		return DepartmentAssignee{DepartmentID: *r.DepartmentID}, nil
	case AssigneeFieldValue:
		if !set[AssigneeFieldValue] {
			return nil, fmt.Errorf("field value assignee requires a field id")
		}
		return FieldValueAssignee{FieldID: *r.FieldID}, nil
	case AssigneeSubmitter:
		return SubmitterAssignee{}, nil
	case AssigneePreviousActor:
		return PreviousActorAssignee{}, nil
	}
	return nil, fmt.Errorf("unknown assignee type %q", r.Type)
}

// ResolutionContext is what assignee resolution may look at when a step is
// activated.
type ResolutionContext struct {
	Submission Submission
	Responses  []Response
	// Rows are the submission's other progress rows, in any order.
	Rows []SubmissionWorkflowProgress
}

// ResolveAssignee maps a step's rule to a concrete user. Role and Department
// rules stay unresolved (nil) and are checked against membership when an
// actor acts. Undecodable rules resolve to nil.
func ResolveAssignee(rule AssigneeRule, stepOrder int, rc ResolutionContext) *uuid.UUID {
	a, err := rule.Variant()
	if err != nil {
		return nil
	}
	switch v := a.(type) {
	case UserAssignee:
		id := v.UserID
		return &id
	case SubmitterAssignee:
		if rc.Submission.SubmittedBy == uuid.Nil {
			return nil
		}
		id := rc.Submission.SubmittedBy
		return &id
	case PreviousActorAssignee:
		return previousActor(stepOrder, rc.Rows)
	case FieldValueAssignee:
		for _, resp := range rc.Responses {
			if resp.FieldID != v.FieldID || resp.TextValue == nil {
				continue
			}
			id, err := uuid.Parse(strings.TrimSpace(*resp.TextValue))
			if err != nil || id == uuid.Nil {
				return nil
			}
			return &id
		}
		return nil
	}
	return nil
}

// previousActor picks the reviewer of the highest-ordered prior row that
// finished with a recorded reviewer. Ties on order go to the latest review.
func previousActor(stepOrder int, rows []SubmissionWorkflowProgress) *uuid.UUID {
	var best *SubmissionWorkflowProgress
	for i := range rows {
		r := &rows[i]
		if r.StepOrder >= stepOrder || !r.Status.IsTerminalSuccess() || r.ReviewedBy == nil {
			continue
		}
		if best == nil || r.StepOrder > best.StepOrder ||
			(r.StepOrder == best.StepOrder && r.ReviewedDate != nil && best.ReviewedDate != nil && r.ReviewedDate.After(*best.ReviewedDate)) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	id := *best.ReviewedBy
	return &id
}
