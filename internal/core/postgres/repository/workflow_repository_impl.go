package repository

import (
	"context"
	"slices"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type workflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository creates a new instance of DefinitionRepository
func NewWorkflowRepository(db *gorm.DB) ports.DefinitionRepository {
	return &workflowRepository{db: db}
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("step_order, created_at, name")
}

func (r *workflowRepository) CreateDefinition(ctx context.Context, def *domain.WorkflowDefinition) error {
	for i := range def.Steps {
		def.Steps[i].WorkflowID = def.ID
	}
	// Steps are written through the association in the same transaction.
	return translate("create definition", r.db.WithContext(ctx).Create(def).Error)
}

func (r *workflowRepository) GetDefinition(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	err := r.db.WithContext(ctx).
		Preload("Steps", orderedSteps).
		Where("id = ?", id).
		First(&def).Error
	if err != nil {
		return nil, translate("get definition", err)
	}
	return &def, nil
}

func (r *workflowRepository) ListDefinitions(ctx context.Context, activeOnly bool) ([]domain.WorkflowDefinition, error) {
	q := r.db.WithContext(ctx).Preload("Steps", orderedSteps)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var defs []domain.WorkflowDefinition
	err := q.Order("name").Find(&defs).Error
	return defs, translate("list definitions", err)
}

func (r *workflowRepository) UpdateDefinition(ctx context.Context, def *domain.WorkflowDefinition) error {
	result := r.db.WithContext(ctx).
		Model(&domain.WorkflowDefinition{}).
		Where("id = ?", def.ID).
		Updates(map[string]interface{}{
			"name":        def.Name,
			"description": def.Description,
			"is_active":   def.IsActive,
		})
	if result.Error != nil {
		return translate("update definition", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NotFound("update definition", "workflow definition %s not found", def.ID)
	}
	return nil
}

func (r *workflowRepository) DeleteDefinition(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workflow_id = ?", id).Delete(&domain.WorkflowStep{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.WorkflowDefinition{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.NotFound("delete definition", "workflow definition %s not found", id)
		}
		return nil
	})
}

func (r *workflowRepository) GetStep(ctx context.Context, id uuid.UUID) (*domain.WorkflowStep, error) {
	var step domain.WorkflowStep
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&step).Error; err != nil {
		return nil, translate("get step", err)
	}
	return &step, nil
}

func (r *workflowRepository) CreateStep(ctx context.Context, step *domain.WorkflowStep) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.WorkflowDefinition{}).Where("id = ?", step.WorkflowID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return domain.NotFound("create step", "workflow definition %s not found", step.WorkflowID)
		}
		return translate("create step", tx.Create(step).Error)
	})
}

func (r *workflowRepository) UpdateStep(ctx context.Context, step *domain.WorkflowStep) error {
	result := r.db.WithContext(ctx).
		Model(step).
		Select("*").
		Omit("id", "workflow_id", "created_at").
		Updates(step)
	if result.Error != nil {
		return translate("update step", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NotFound("update step", "workflow step %s not found", step.ID)
	}
	return nil
}

func (r *workflowRepository) DeleteStep(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var step domain.WorkflowStep
		if err := tx.Where("id = ?", id).First(&step).Error; err != nil {
			return err
		}
		if err := tx.Delete(&step).Error; err != nil {
			return err
		}

		var siblings []domain.WorkflowStep
		if err := tx.Where("workflow_id = ?", step.WorkflowID).Find(&siblings).Error; err != nil {
			return err
		}
		for i := range siblings {
			deps, changed := withoutDependency(siblings[i].DependsOnStepIDs, id)
			if !changed {
				continue
			}
			if err := tx.Model(&siblings[i]).Update("depends_on_step_ids", deps).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translate("delete step", err)
}

// withoutDependency returns deps minus id, and whether id was present.
func withoutDependency(deps datatypes.JSONSlice[uuid.UUID], id uuid.UUID) (datatypes.JSONSlice[uuid.UUID], bool) {
	if !slices.Contains(deps, id) {
		return deps, false
	}
	out := make(datatypes.JSONSlice[uuid.UUID], 0, len(deps)-1)
	for _, d := range deps {
		if d != id {
			out = append(out, d)
		}
	}
	return out, true
}

func (r *workflowRepository) ReorderSteps(ctx context.Context, workflowID uuid.UUID, orders map[uuid.UUID]int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, order := range orders {
			result := tx.Model(&domain.WorkflowStep{}).
				Where("id = ? AND workflow_id = ?", id, workflowID).
				Update("step_order", order)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return domain.NotFound("reorder steps", "workflow step %s not found in workflow %s", id, workflowID)
			}
		}
		return nil
	})
}

func (r *workflowRepository) ListActions(ctx context.Context) ([]domain.WorkflowAction, error) {
	var actions []domain.WorkflowAction
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("display_order").
		Find(&actions).Error
	return actions, translate("list actions", err)
}
