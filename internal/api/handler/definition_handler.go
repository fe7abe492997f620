package handler

import (
	"net/http"
	"strconv"

	"go-stepflow/internal/api/dto"
	"go-stepflow/internal/domain"
	"go-stepflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListDefinitions returns every definition, or only active ones with
// ?active=true.
func (h *WorkflowHandler) ListDefinitions(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.Query("active"))
	defs, err := h.defs.ListDefinitions(c.Request.Context(), activeOnly)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(defs))
}

func (h *WorkflowHandler) CreateDefinition(c *gin.Context) {
	var req service.CreateDefinitionInput
	if !bind(c, &req) {
		return
	}
	def, err := h.defs.CreateDefinition(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, def)
}

func (h *WorkflowHandler) GetDefinition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	def, err := h.defs.GetDefinition(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (h *WorkflowHandler) UpdateDefinition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch service.DefinitionPatch
	if !bind(c, &patch) {
		return
	}
	def, err := h.defs.UpdateDefinition(c.Request.Context(), id, patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (h *WorkflowHandler) DeleteDefinition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	soft, err := h.defs.DeleteDefinition(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DeleteDefinitionResponse{Soft: soft})
}

func (h *WorkflowHandler) CanDeleteDefinition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	check, err := h.defs.CanDeleteDefinition(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (h *WorkflowHandler) AddStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.StepInput
	if !bind(c, &req) {
		return
	}
	step, err := h.defs.AddStep(c.Request.Context(), id, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, step)
}

func (h *WorkflowHandler) ReorderSteps(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.ReorderStepsRequest
	if !bind(c, &req) {
		return
	}
	def, err := h.defs.ReorderSteps(c.Request.Context(), id, req.Orders)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (h *WorkflowHandler) CloneDefinition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.CloneDefinitionRequest
	if !bind(c, &req) {
		return
	}
	def, err := h.defs.CloneDefinition(c.Request.Context(), actorFrom(c), id, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, def)
}

// ValidateDefinition runs the structural checks, plus the mode checks of
// the template named by ?template_id= when given.
func (h *WorkflowHandler) ValidateDefinition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	raw := c.Query("template_id")
	if raw == "" {
		res, err := h.defs.ValidateDefinition(c.Request.Context(), id)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	templateID, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(c, domain.Validation("validate definition", "malformed template_id", raw))
		return
	}
	res, err := h.defs.ValidateForTemplate(c.Request.Context(), id, templateID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *WorkflowHandler) ValidateStepDraft(c *gin.Context) {
	var req dto.ValidateStepRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.defs.ValidateStepDraft(c.Request.Context(), req.TemplateID, req.Step, req.Existing)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *WorkflowHandler) UpdateStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch service.StepPatch
	if !bind(c, &patch) {
		return
	}
	step, err := h.defs.UpdateStep(c.Request.Context(), id, patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, step)
}

func (h *WorkflowHandler) DeleteStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.defs.DeleteStep(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *WorkflowHandler) ListActions(c *gin.Context) {
	actions, err := h.defs.ListActions(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(actions))
}
