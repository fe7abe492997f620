package dto

import (
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
)

type ErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type WorkflowStatusResponse struct {
	SubmissionID uuid.UUID             `json:"submission_id"`
	Status       domain.WorkflowStatus `json:"status"`
	Complete     bool                  `json:"complete"`
}

type DeleteDefinitionResponse struct {
	Soft bool `json:"soft"`
}

type CanActResponse struct {
	Allowed bool `json:"allowed"`
}
