package service

import (
	"context"
	"slices"
	"strings"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"
	"go-stepflow/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DefinitionService interface {
	ListDefinitions(ctx context.Context, activeOnly bool) ([]domain.WorkflowDefinition, error)
	GetDefinition(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, error)
	CreateDefinition(ctx context.Context, actor domain.ActorContext, in CreateDefinitionInput) (*domain.WorkflowDefinition, error)
	UpdateDefinition(ctx context.Context, id uuid.UUID, patch DefinitionPatch) (*domain.WorkflowDefinition, error)
	// DeleteDefinition reports true when the definition was only deactivated
	// because templates still reference it.
	DeleteDefinition(ctx context.Context, id uuid.UUID) (bool, error)
	CanDeleteDefinition(ctx context.Context, id uuid.UUID) (*DeleteCheck, error)

	AddStep(ctx context.Context, workflowID uuid.UUID, in StepInput) (*domain.WorkflowStep, error)
	UpdateStep(ctx context.Context, stepID uuid.UUID, patch StepPatch) (*domain.WorkflowStep, error)
	DeleteStep(ctx context.Context, stepID uuid.UUID) error
	ReorderSteps(ctx context.Context, workflowID uuid.UUID, orders map[uuid.UUID]int) (*domain.WorkflowDefinition, error)
	CloneDefinition(ctx context.Context, actor domain.ActorContext, id uuid.UUID, newName string) (*domain.WorkflowDefinition, error)

	ValidateDefinition(ctx context.Context, id uuid.UUID) (validation.Result, error)
	ValidateForTemplate(ctx context.Context, id, templateID uuid.UUID) (validation.Result, error)
	ValidateStepDraft(ctx context.Context, templateID uuid.UUID, draft StepInput, existing []StepInput) (validation.Result, error)

	ListActions(ctx context.Context) ([]domain.WorkflowAction, error)
}

// StepInput describes a new step. ID may be supplied so that steps created
// together can depend on each other.
type StepInput struct {
	ID               *uuid.UUID                   `json:"id,omitempty"`
	StepOrder        int                          `json:"step_order"`
	Name             string                       `json:"name"`
	ActionCode       domain.ActionCode            `json:"action_code"`
	TargetType       domain.TargetType            `json:"target_type"`
	TargetID         *uuid.UUID                   `json:"target_id,omitempty"`
	Assignee         domain.AssigneeRule          `json:"assignee"`
	IsMandatory      *bool                        `json:"is_mandatory,omitempty"` // defaults to true
	IsParallel       bool                         `json:"is_parallel"`
	DueDays          *int                         `json:"due_days,omitempty"`
	EscalationRoleID *uuid.UUID                   `json:"escalation_role_id,omitempty"`
	ConditionLogic   string                       `json:"condition_logic,omitempty"`
	AutoApprove      *domain.AutoApproveCondition `json:"auto_approve,omitempty"`
	DependsOnStepIDs []uuid.UUID                  `json:"depends_on_step_ids,omitempty"`
}

func (in StepInput) toStep(workflowID uuid.UUID) domain.WorkflowStep {
	id := uuid.New()
	if in.ID != nil && *in.ID != uuid.Nil {
		id = *in.ID
	}
	target := in.TargetType
	if target == "" {
		target = domain.TargetSubmission
	}
	mandatory := true
	if in.IsMandatory != nil {
		mandatory = *in.IsMandatory
	}
	return domain.WorkflowStep{
		ID:               id,
		WorkflowID:       workflowID,
		StepOrder:        in.StepOrder,
		Name:             strings.TrimSpace(in.Name),
		ActionCode:       in.ActionCode,
		TargetType:       target,
		TargetID:         in.TargetID,
		Assignee:         in.Assignee,
		IsMandatory:      mandatory,
		IsParallel:       in.IsParallel,
		DueDays:          in.DueDays,
		EscalationRoleID: in.EscalationRoleID,
		ConditionLogic:   in.ConditionLogic,
		AutoApprove:      in.AutoApprove,
		DependsOnStepIDs: slices.Clone(in.DependsOnStepIDs),
	}
}

// StepPatch changes only the fields that are set.
type StepPatch struct {
	StepOrder        *int                         `json:"step_order,omitempty"`
	Name             *string                      `json:"name,omitempty"`
	ActionCode       *domain.ActionCode           `json:"action_code,omitempty"`
	TargetType       *domain.TargetType           `json:"target_type,omitempty"`
	TargetID         *uuid.UUID                   `json:"target_id,omitempty"`
	Assignee         *domain.AssigneeRule         `json:"assignee,omitempty"`
	IsMandatory      *bool                        `json:"is_mandatory,omitempty"`
	IsParallel       *bool                        `json:"is_parallel,omitempty"`
	DueDays          *int                         `json:"due_days,omitempty"`
	EscalationRoleID *uuid.UUID                   `json:"escalation_role_id,omitempty"`
	ConditionLogic   *string                      `json:"condition_logic,omitempty"`
	AutoApprove      *domain.AutoApproveCondition `json:"auto_approve,omitempty"`
	DependsOnStepIDs *[]uuid.UUID                 `json:"depends_on_step_ids,omitempty"`

	// Clear flags reset an optional field to unset.
	ClearTargetID         bool `json:"clear_target_id,omitempty"`
	ClearDueDays          bool `json:"clear_due_days,omitempty"`
	ClearEscalationRoleID bool `json:"clear_escalation_role_id,omitempty"`
	ClearAutoApprove      bool `json:"clear_auto_approve,omitempty"`
}

// conflicts lists fields the patch both sets and clears.
func (p StepPatch) conflicts() []string {
	var out []string
	check := func(set, clear bool, field string) {
		if set && clear {
			out = append(out, field+" is both set and cleared")
		}
	}
	check(p.TargetID != nil, p.ClearTargetID, "target_id")
	check(p.DueDays != nil, p.ClearDueDays, "due_days")
	check(p.EscalationRoleID != nil, p.ClearEscalationRoleID, "escalation_role_id")
	check(p.AutoApprove != nil, p.ClearAutoApprove, "auto_approve")
	return out
}

func (p StepPatch) apply(s *domain.WorkflowStep) {
	if p.StepOrder != nil {
		s.StepOrder = *p.StepOrder
	}
	if p.Name != nil {
		s.Name = strings.TrimSpace(*p.Name)
	}
	if p.ActionCode != nil {
		s.ActionCode = *p.ActionCode
	}
	if p.TargetType != nil {
		s.TargetType = *p.TargetType
		if s.TargetType == domain.TargetSubmission {
			s.TargetID = nil
		}
	}
	if p.TargetID != nil {
		s.TargetID = p.TargetID
	}
	if p.Assignee != nil {
		s.Assignee = *p.Assignee
	}
	if p.IsMandatory != nil {
		s.IsMandatory = *p.IsMandatory
	}
	if p.IsParallel != nil {
		s.IsParallel = *p.IsParallel
	}
	if p.DueDays != nil {
		s.DueDays = p.DueDays
	}
	if p.EscalationRoleID != nil {
		s.EscalationRoleID = p.EscalationRoleID
	}
	if p.ConditionLogic != nil {
		s.ConditionLogic = *p.ConditionLogic
	}
	if p.AutoApprove != nil {
		s.AutoApprove = p.AutoApprove
	}
	if p.DependsOnStepIDs != nil {
		s.DependsOnStepIDs = slices.Clone(*p.DependsOnStepIDs)
	}
	if p.ClearTargetID {
		s.TargetID = nil
	}
	if p.ClearDueDays {
		s.DueDays = nil
	}
	if p.ClearEscalationRoleID {
		s.EscalationRoleID = nil
	}
	if p.ClearAutoApprove {
		s.AutoApprove = nil
	}
}

type CreateDefinitionInput struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Steps       []StepInput `json:"steps"`
}

type DefinitionPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// DeleteCheck tells whether a definition can be removed outright.
type DeleteCheck struct {
	CanHardDelete bool  `json:"can_hard_delete"`
	TemplateCount int64 `json:"template_count"`
}

type definitionService struct {
	definitions ports.DefinitionRepository
	progress    ports.ProgressRepository
	templates   ports.TemplateProvider
	opts        options
}

func NewDefinitionService(
	definitions ports.DefinitionRepository,
	progress ports.ProgressRepository,
	templates ports.TemplateProvider,
	opts ...Option,
) DefinitionService {
	return &definitionService{
		definitions: definitions,
		progress:    progress,
		templates:   templates,
		opts:        buildOptions(opts),
	}
}

func (s *definitionService) ListDefinitions(ctx context.Context, activeOnly bool) ([]domain.WorkflowDefinition, error) {
	return s.definitions.ListDefinitions(ctx, activeOnly)
}

func (s *definitionService) GetDefinition(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, error) {
	return s.definitions.GetDefinition(ctx, id)
}

func (s *definitionService) CreateDefinition(ctx context.Context, actor domain.ActorContext, in CreateDefinitionInput) (*domain.WorkflowDefinition, error) {
	const op = "create definition"
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.Validation(op, "definition name is required")
	}

	def := domain.NewWorkflowDefinition(name, in.Description, actor.UserID)
	def.CreatedAt = s.opts.now()
	for _, si := range in.Steps {
		def.Steps = append(def.Steps, si.toStep(def.ID))
	}
	var res validation.Result
	for i, step := range def.Steps {
		siblings := slices.Delete(slices.Clone(def.Steps), i, i+1)
		res.Merge(validation.Step(step, siblings))
	}
	if err := res.Err(op); err != nil {
		return nil, err
	}

	if err := s.definitions.CreateDefinition(ctx, def); err != nil {
		return nil, err
	}
	s.opts.logger.Info("workflow definition created",
		zap.String("workflow_id", def.ID.String()),
		zap.String("name", def.Name),
		zap.Int("steps", len(def.Steps)))
	return s.definitions.GetDefinition(ctx, def.ID)
}

func (s *definitionService) UpdateDefinition(ctx context.Context, id uuid.UUID, patch DefinitionPatch) (*domain.WorkflowDefinition, error) {
	def, err := s.definitions.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, domain.Validation("update definition", "definition name cannot be empty")
		}
		def.Name = name
	}
	if patch.Description != nil {
		def.Description = *patch.Description
	}
	if patch.IsActive != nil {
		def.IsActive = *patch.IsActive
	}
	if err := s.definitions.UpdateDefinition(ctx, def); err != nil {
		return nil, err
	}
	return s.definitions.GetDefinition(ctx, id)
}

func (s *definitionService) DeleteDefinition(ctx context.Context, id uuid.UUID) (bool, error) {
	check, err := s.CanDeleteDefinition(ctx, id)
	if err != nil {
		return false, err
	}
	logger := s.opts.logger.With(zap.String("workflow_id", id.String()))

	if !check.CanHardDelete {
		def, err := s.definitions.GetDefinition(ctx, id)
		if err != nil {
			return false, err
		}
		def.IsActive = false
		if err := s.definitions.UpdateDefinition(ctx, def); err != nil {
			return false, err
		}
		logger.Info("workflow definition deactivated", zap.Int64("templates", check.TemplateCount))
		return true, nil
	}

	if err := s.definitions.DeleteDefinition(ctx, id); err != nil {
		return false, err
	}
	logger.Info("workflow definition deleted")
	return false, nil
}

func (s *definitionService) CanDeleteDefinition(ctx context.Context, id uuid.UUID) (*DeleteCheck, error) {
	if _, err := s.definitions.GetDefinition(ctx, id); err != nil {
		return nil, err
	}
	n, err := s.templates.CountTemplatesUsing(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DeleteCheck{CanHardDelete: n == 0, TemplateCount: n}, nil
}

func (s *definitionService) AddStep(ctx context.Context, workflowID uuid.UUID, in StepInput) (*domain.WorkflowStep, error) {
	def, err := s.definitions.GetDefinition(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	step := in.toStep(workflowID)
	if slices.ContainsFunc(def.Steps, func(existing domain.WorkflowStep) bool { return existing.ID == step.ID }) {
		return nil, domain.Validation("add step", "step id "+step.ID.String()+" is already in use")
	}
	if err := validation.Step(step, def.Steps).Err("add step"); err != nil {
		return nil, err
	}
	if err := s.definitions.CreateStep(ctx, &step); err != nil {
		return nil, err
	}
	return &step, nil
}

func (s *definitionService) UpdateStep(ctx context.Context, stepID uuid.UUID, patch StepPatch) (*domain.WorkflowStep, error) {
	if problems := patch.conflicts(); len(problems) > 0 {
		return nil, domain.Validation("update step", "conflicting step patch", problems...)
	}
	step, err := s.definitions.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	def, err := s.definitions.GetDefinition(ctx, step.WorkflowID)
	if err != nil {
		return nil, err
	}
	patch.apply(step)
	siblings := slices.DeleteFunc(def.Steps, func(other domain.WorkflowStep) bool { return other.ID == stepID })
	if err := validation.Step(*step, siblings).Err("update step"); err != nil {
		return nil, err
	}
	if err := s.definitions.UpdateStep(ctx, step); err != nil {
		return nil, err
	}
	return step, nil
}

// DeleteStep removes a step that no submission has started on, and drops it
// from the dependency lists of its siblings.
func (s *definitionService) DeleteStep(ctx context.Context, stepID uuid.UUID) error {
	const op = "delete step"
	step, err := s.definitions.GetStep(ctx, stepID)
	if err != nil {
		return err
	}
	n, err := s.progress.CountByStep(ctx, stepID)
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.PreconditionFailed(op, "step %q is used by %d submission progress rows", step.Name, n)
	}
	return s.definitions.DeleteStep(ctx, stepID)
}

func (s *definitionService) ReorderSteps(ctx context.Context, workflowID uuid.UUID, orders map[uuid.UUID]int) (*domain.WorkflowDefinition, error) {
	const op = "reorder steps"
	def, err := s.definitions.GetDefinition(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	var problems []string
	for id, order := range orders {
		if !slices.ContainsFunc(def.Steps, func(st domain.WorkflowStep) bool { return st.ID == id }) {
			problems = append(problems, "step "+id.String()+" is not part of this workflow")
		} else if order < 1 {
			problems = append(problems, "step "+id.String()+": order must be at least 1")
		}
	}
	if len(problems) > 0 {
		slices.Sort(problems)
		return nil, domain.Validation(op, "invalid step order", problems...)
	}
	if err := s.definitions.ReorderSteps(ctx, workflowID, orders); err != nil {
		return nil, err
	}
	return s.definitions.GetDefinition(ctx, workflowID)
}

// CloneDefinition copies a definition under fresh step IDs. Dependencies are
// remapped to the copies; references to steps outside the definition are
// dropped.
func (s *definitionService) CloneDefinition(ctx context.Context, actor domain.ActorContext, id uuid.UUID, newName string) (*domain.WorkflowDefinition, error) {
	src, err := s.definitions.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(newName)
	if name == "" {
		name = src.Name + " (Copy)"
	}

	clone := domain.NewWorkflowDefinition(name, src.Description, actor.UserID)
	clone.CreatedAt = s.opts.now()
	remap := make(map[uuid.UUID]uuid.UUID, len(src.Steps))
	for _, st := range src.Steps {
		remap[st.ID] = uuid.New()
	}
	for _, st := range src.Steps {
		copied := st
		copied.ID = remap[st.ID]
		copied.WorkflowID = clone.ID
		copied.DependsOnStepIDs = nil
		for _, dep := range st.DependsOnStepIDs {
			if mapped, ok := remap[dep]; ok {
				copied.DependsOnStepIDs = append(copied.DependsOnStepIDs, mapped)
			}
		}
		if st.AutoApprove != nil {
			cond := *st.AutoApprove
			copied.AutoApprove = &cond
		}
		clone.Steps = append(clone.Steps, copied)
	}

	if err := s.definitions.CreateDefinition(ctx, clone); err != nil {
		return nil, err
	}
	s.opts.logger.Info("workflow definition cloned",
		zap.String("source_id", id.String()),
		zap.String("workflow_id", clone.ID.String()))
	return s.definitions.GetDefinition(ctx, clone.ID)
}

func (s *definitionService) ValidateDefinition(ctx context.Context, id uuid.UUID) (validation.Result, error) {
	def, err := s.definitions.GetDefinition(ctx, id)
	if err != nil {
		return validation.Result{}, err
	}
	return validation.Definition(def.Steps), nil
}

func (s *definitionService) ValidateForTemplate(ctx context.Context, id, templateID uuid.UUID) (validation.Result, error) {
	def, err := s.definitions.GetDefinition(ctx, id)
	if err != nil {
		return validation.Result{}, err
	}
	binding, err := s.templates.GetTemplateBinding(ctx, templateID)
	if err != nil {
		return validation.Result{}, err
	}
	res := validation.Definition(def.Steps)
	res.Merge(validation.ForMode(def.Steps, *binding))
	return res, nil
}

func (s *definitionService) ValidateStepDraft(ctx context.Context, templateID uuid.UUID, draft StepInput, existing []StepInput) (validation.Result, error) {
	binding, err := s.templates.GetTemplateBinding(ctx, templateID)
	if err != nil {
		return validation.Result{}, err
	}
	steps := make([]domain.WorkflowStep, len(existing))
	for i, in := range existing {
		steps[i] = in.toStep(uuid.Nil)
	}
	return validation.StepDraft(draft.toStep(uuid.Nil), steps, *binding), nil
}

func (s *definitionService) ListActions(ctx context.Context) ([]domain.WorkflowAction, error) {
	return s.definitions.ListActions(ctx)
}
