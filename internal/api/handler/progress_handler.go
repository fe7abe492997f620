package handler

import (
	"net/http"

	"go-stepflow/internal/api/dto"
	"go-stepflow/internal/domain"
	"go-stepflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *WorkflowHandler) InitializeWorkflow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	view, err := h.engine.InitializeSubmissionWorkflow(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *WorkflowHandler) GetSubmissionProgress(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	view, err := h.engine.GetSubmissionProgress(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *WorkflowHandler) GetCurrentSteps(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rows, err := h.engine.GetCurrentSteps(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(rows))
}

func (h *WorkflowHandler) GetWorkflowStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	status, err := h.engine.GetWorkflowStatus(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	complete, err := h.engine.IsWorkflowComplete(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.WorkflowStatusResponse{SubmissionID: id, Status: status, Complete: complete})
}

// CanActOnTarget answers for ?target_type=Section|Field&target_id=, or for
// the submission as a whole when no target is given.
func (h *WorkflowHandler) CanActOnTarget(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	targetType := domain.TargetType(c.DefaultQuery("target_type", string(domain.TargetSubmission)))
	var targetID *uuid.UUID
	if raw := c.Query("target_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(c, domain.Validation("can act", "malformed target_id", raw))
			return
		}
		targetID = &parsed
	}
	allowed, err := h.engine.CanActorActOnTarget(c.Request.Context(), actorFrom(c), id, targetType, targetID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CanActResponse{Allowed: allowed})
}

func (h *WorkflowHandler) EvaluateAutoApprovals(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.engine.EvaluateAutoApprovals(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *WorkflowHandler) GetStepProgress(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	row, err := h.engine.GetStepProgress(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *WorkflowHandler) CheckStepDependencies(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	check, err := h.engine.CheckStepDependencies(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (h *WorkflowHandler) CanActOnStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	allowed, err := h.engine.CanActorActOnStep(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CanActResponse{Allowed: allowed})
}

func (h *WorkflowHandler) StartStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	row, err := h.engine.StartStep(c.Request.Context(), actorFrom(c), id)
	h.respondRow(c, row, err)
}

func (h *WorkflowHandler) CompleteStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.CompleteStepRequest
	if !bind(c, &req) {
		return
	}
	row, err := h.engine.CompleteStep(c.Request.Context(), actorFrom(c), service.CompleteStepInput{
		ProgressID: id,
		Comments:   req.Comments,
		Signature:  req.Signature,
	})
	h.respondRow(c, row, err)
}

func (h *WorkflowHandler) RejectStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.ReasonRequest
	if !bind(c, &req) {
		return
	}
	row, err := h.engine.RejectStep(c.Request.Context(), actorFrom(c), id, req.Reason)
	h.respondRow(c, row, err)
}

func (h *WorkflowHandler) SkipStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.ReasonRequest
	if !bind(c, &req) {
		return
	}
	row, err := h.engine.SkipStep(c.Request.Context(), actorFrom(c), id, req.Reason)
	h.respondRow(c, row, err)
}

func (h *WorkflowHandler) DelegateStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.DelegateStepRequest
	if !bind(c, &req) {
		return
	}
	row, err := h.engine.DelegateStep(c.Request.Context(), actorFrom(c), service.DelegateStepInput{
		ProgressID: id,
		DelegateTo: req.DelegateTo,
		Reason:     req.Reason,
	})
	h.respondRow(c, row, err)
}

func (h *WorkflowHandler) GetPendingActions(c *gin.Context) {
	rows, err := h.engine.GetPendingActions(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(rows))
}

func (h *WorkflowHandler) CountPendingActions(c *gin.Context) {
	n, err := h.engine.CountPendingActions(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CountResponse{Count: n})
}

func (h *WorkflowHandler) respondRow(c *gin.Context, row *domain.SubmissionWorkflowProgress, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
