package dto

import (
	"go-stepflow/internal/service"

	"github.com/google/uuid"
)

type CompleteStepRequest struct {
	Comments  string                  `json:"comments"`
	Signature *service.SignatureInput `json:"signature"`
}

// ReasonRequest carries the reason of a reject or skip.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

type DelegateStepRequest struct {
	DelegateTo uuid.UUID `json:"delegate_to" binding:"required"`
	Reason     string    `json:"reason"`
}

type ReorderStepsRequest struct {
	Orders map[uuid.UUID]int `json:"orders" binding:"required,min=1"`
}

type CloneDefinitionRequest struct {
	Name string `json:"name"`
}

// ValidateStepRequest checks a draft step against a template before it is
// saved, alongside the steps already drafted.
type ValidateStepRequest struct {
	TemplateID uuid.UUID           `json:"template_id" binding:"required"`
	Step       service.StepInput   `json:"step"`
	Existing   []service.StepInput `json:"existing"`
}
