package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "Submitted"
	SubmissionApproved  SubmissionStatus = "Approved"
	SubmissionRejected  SubmissionStatus = "Rejected"
)

// SubmissionMode decides which step shapes a bound definition may contain.
type SubmissionMode string

const (
	ModeIndividual    SubmissionMode = "Individual"
	ModeCollaborative SubmissionMode = "Collaborative"
)

// Submission is the lifecycle provider's view of a submitted record.
type Submission struct {
	ID          uuid.UUID        `gorm:"type:uuid;primary_key;" json:"id"`
	TemplateID  uuid.UUID        `gorm:"type:uuid;index;not null" json:"template_id"`
	SubmittedBy uuid.UUID        `gorm:"type:uuid;index;not null" json:"submitted_by"`
	Status      SubmissionStatus `gorm:"type:varchar(20);index" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (Submission) TableName() string { return "submissions" }

// Response is one answered field of a submission.
type Response struct {
	ID           uuid.UUID           `gorm:"type:uuid;primary_key;" json:"id"`
	SubmissionID uuid.UUID           `gorm:"type:uuid;index;not null" json:"submission_id"`
	FieldID      uuid.UUID           `gorm:"type:uuid;index;not null" json:"field_id"`
	FieldName    string              `gorm:"type:varchar(200)" json:"field_name"`
	FieldCode    string              `gorm:"type:varchar(100)" json:"field_code"`
	TextValue    *string             `gorm:"type:text" json:"text_value,omitempty"`
	NumericValue decimal.NullDecimal `gorm:"type:numeric" json:"numeric_value"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (Response) TableName() string { return "submission_responses" }

// Number returns the stored numeric value, falling back to the text value
// parsed as a decimal.
func (r Response) Number() (decimal.Decimal, bool) {
	if r.NumericValue.Valid {
		return r.NumericValue.Decimal, true
	}
	if r.TextValue == nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*r.TextValue))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// TemplateBinding is the flat view of a form template needed to start and
// validate workflows: which definition it uses, its mode, and its layout.
type TemplateBinding struct {
	TemplateID uuid.UUID
	WorkflowID *uuid.UUID
	Mode       SubmissionMode
	SectionIDs []uuid.UUID
	// FieldSections maps each field of the template to its section.
	FieldSections map[uuid.UUID]uuid.UUID
}
