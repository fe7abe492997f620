package handler

import (
	"errors"
	"io"
	"net/http"

	"go-stepflow/internal/api/dto"
	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"
	"go-stepflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderUserID names the header the host application sets to the calling
// user's ID.
const HeaderUserID = "X-User-ID"

const actorKey = "stepflow.actor"

type WorkflowHandler struct {
	engine   service.WorkflowEngine
	defs     service.DefinitionService
	identity ports.IdentityProvider
	log      *zap.Logger
}

func NewWorkflowHandler(engine service.WorkflowEngine, defs service.DefinitionService, identity ports.IdentityProvider, log *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{engine: engine, defs: defs, identity: identity, log: log.Named("http")}
}

// Register mounts every route on r, normally the /api/v1 group.
func (h *WorkflowHandler) Register(r gin.IRouter) {
	api := r.Group("", h.resolveActor)

	api.POST("/submissions/:id/workflow", h.InitializeWorkflow)
	api.GET("/submissions/:id/workflow", h.GetSubmissionProgress)
	api.GET("/submissions/:id/workflow/current", h.GetCurrentSteps)
	api.GET("/submissions/:id/workflow/status", h.GetWorkflowStatus)
	api.GET("/submissions/:id/workflow/can-act", h.CanActOnTarget)
	api.POST("/submissions/:id/workflow/evaluate", h.EvaluateAutoApprovals)

	api.GET("/progress/:id", h.GetStepProgress)
	api.GET("/progress/:id/dependencies", h.CheckStepDependencies)
	api.GET("/progress/:id/can-act", h.CanActOnStep)
	api.POST("/progress/:id/start", h.StartStep)
	api.POST("/progress/:id/complete", h.CompleteStep)
	api.POST("/progress/:id/reject", h.RejectStep)
	api.POST("/progress/:id/skip", h.SkipStep)
	api.POST("/progress/:id/delegate", h.DelegateStep)

	api.GET("/me/pending-actions", h.GetPendingActions)
	api.GET("/me/pending-actions/count", h.CountPendingActions)

	api.GET("/workflows", h.ListDefinitions)
	api.POST("/workflows", h.CreateDefinition)
	api.POST("/workflows/steps/validate", h.ValidateStepDraft)
	api.GET("/workflows/:id", h.GetDefinition)
	api.PATCH("/workflows/:id", h.UpdateDefinition)
	api.DELETE("/workflows/:id", h.DeleteDefinition)
	api.GET("/workflows/:id/can-delete", h.CanDeleteDefinition)
	api.POST("/workflows/:id/steps", h.AddStep)
	api.POST("/workflows/:id/reorder", h.ReorderSteps)
	api.POST("/workflows/:id/clone", h.CloneDefinition)
	api.GET("/workflows/:id/validate", h.ValidateDefinition)
	api.PATCH("/steps/:id", h.UpdateStep)
	api.DELETE("/steps/:id", h.DeleteStep)
	api.GET("/actions", h.ListActions)
}

// resolveActor builds the actor from the identity provider's current view
// of the user named in the header. Client-supplied roles are never trusted.
func (h *WorkflowHandler) resolveActor(c *gin.Context) {
	raw := c.GetHeader(HeaderUserID)
	if raw == "" {
		abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "missing "+HeaderUserID+" header")
		return
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "malformed "+HeaderUserID+" header")
		return
	}

	actor, err := h.identity.Membership(c.Request.Context(), userID)
	if err != nil {
		if domain.IsNotFound(err) {
			abort(c, http.StatusForbidden, string(domain.ErrForbidden), "unknown or inactive user")
			return
		}
		h.writeError(c, err)
		c.Abort()
		return
	}
	actor.ClientIP = c.ClientIP()
	c.Set(actorKey, actor)
	c.Next()
}

func actorFrom(c *gin.Context) domain.ActorContext {
	actor, _ := c.MustGet(actorKey).(domain.ActorContext)
	return actor
}

// pathID parses the :id parameter, writing a validation error on failure.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBody(c, http.StatusUnprocessableEntity, dto.ErrorBody{
			Code:    string(domain.ErrValidation),
			Message: "malformed id " + c.Param("id"),
		})
		return uuid.Nil, false
	}
	return id, true
}

// bind decodes the JSON body into req, writing a validation error on failure.
// An empty body leaves req at its zero value.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		writeBody(c, http.StatusUnprocessableEntity, dto.ErrorBody{
			Code:    string(domain.ErrValidation),
			Message: "invalid request body",
			Details: []string{err.Error()},
		})
		return false
	}
	return true
}

// StatusFor maps an error code onto its HTTP status.
func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrValidation:
		return http.StatusUnprocessableEntity
	case domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrPreconditionFailed, domain.ErrConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *WorkflowHandler) writeError(c *gin.Context, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		writeBody(c, http.StatusInternalServerError, dto.ErrorBody{Code: "INTERNAL", Message: "internal error"})
		return
	}
	writeBody(c, StatusFor(de.Code), dto.ErrorBody{Code: string(de.Code), Message: de.Message, Details: de.Details})
}

func writeBody(c *gin.Context, status int, body dto.ErrorBody) {
	c.JSON(status, dto.ErrorResponse{Error: body})
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: dto.ErrorBody{Code: code, Message: message}})
}
