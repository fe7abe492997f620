package repository

import (
	"context"
	"time"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// templateRecord is the slice of the form template table the engine reads.
type templateRecord struct {
	ID            uuid.UUID                      `gorm:"type:uuid;primary_key;"`
	WorkflowID    *uuid.UUID                     `gorm:"type:uuid;index"`
	Mode          domain.SubmissionMode          `gorm:"type:varchar(20);not null;default:'Individual'"`
	SectionIDs    datatypes.JSONSlice[uuid.UUID] `gorm:"type:jsonb"`
	FieldSections map[uuid.UUID]uuid.UUID        `gorm:"type:jsonb;serializer:json"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (templateRecord) TableName() string { return "form_templates" }

func (t templateRecord) binding() *domain.TemplateBinding {
	b := &domain.TemplateBinding{
		TemplateID:    t.ID,
		WorkflowID:    t.WorkflowID,
		Mode:          t.Mode,
		SectionIDs:    []uuid.UUID(t.SectionIDs),
		FieldSections: t.FieldSections,
	}
	if b.Mode == "" {
		b.Mode = domain.ModeIndividual
	}
	return b
}

type userRecord struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key;"`
	DepartmentID *uuid.UUID `gorm:"type:uuid;index"`
	IsActive     bool       `gorm:"not null"`
	CreatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

type userRoleRecord struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoleID    uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	CreatedAt time.Time
}

func (userRoleRecord) TableName() string { return "user_roles" }

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository serves both the submission lifecycle and the
// response store from the same tables.
func NewSubmissionRepository(db *gorm.DB) interface {
	ports.SubmissionProvider
	ports.ResponseStore
} {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetSubmission(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	var sub domain.Submission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, translate("get submission", err)
	}
	return &sub, nil
}

func (r *submissionRepository) SetSubmissionStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return translate("set submission status", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NotFound("set submission status", "submission %s not found", id)
	}
	return nil
}

func (r *submissionRepository) ListResponses(ctx context.Context, submissionID uuid.UUID) ([]domain.Response, error) {
	var responses []domain.Response
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("field_name").
		Find(&responses).Error
	return responses, translate("list responses", err)
}

type templateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) ports.TemplateProvider {
	return &templateRepository{db: db}
}

func (r *templateRepository) GetTemplateBinding(ctx context.Context, templateID uuid.UUID) (*domain.TemplateBinding, error) {
	var rec templateRecord
	if err := r.db.WithContext(ctx).Where("id = ?", templateID).First(&rec).Error; err != nil {
		return nil, translate("get template", err)
	}
	return rec.binding(), nil
}

func (r *templateRepository) CountTemplatesUsing(ctx context.Context, workflowID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&templateRecord{}).
		Where("workflow_id = ?", workflowID).
		Count(&count).Error
	return count, translate("count templates", err)
}

type identityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) ports.IdentityProvider {
	return &identityRepository{db: db}
}

func (r *identityRepository) Membership(ctx context.Context, userID uuid.UUID) (domain.ActorContext, error) {
	var user userRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", userID, true).
		First(&user).Error
	if err != nil {
		return domain.ActorContext{}, translate("membership", err)
	}

	var roles []uuid.UUID
	err = r.db.WithContext(ctx).
		Model(&userRoleRecord{}).
		Where("user_id = ?", userID).
		Order("created_at").
		Pluck("role_id", &roles).Error
	if err != nil {
		return domain.ActorContext{}, translate("membership", err)
	}
	return domain.ActorContext{UserID: user.ID, RoleIDs: roles, DepartmentID: user.DepartmentID}, nil
}

// FirstActiveUserWithRole picks the longest-standing active holder of the
// role, so repeated escalations land on the same person.
func (r *identityRepository) FirstActiveUserWithRole(ctx context.Context, roleID uuid.UUID) (uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&userRoleRecord{}).
		Joins("JOIN users ON users.id = user_roles.user_id").
		Where("user_roles.role_id = ? AND users.is_active = ?", roleID, true).
		Order("user_roles.created_at, users.id").
		Limit(1).
		Pluck("users.id", &ids).Error
	if err != nil {
		return uuid.Nil, translate("find role holder", err)
	}
	if len(ids) == 0 {
		return uuid.Nil, nil
	}
	return ids[0], nil
}
