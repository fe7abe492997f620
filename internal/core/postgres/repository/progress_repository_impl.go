package repository

import (
	"context"
	"time"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var openStatuses = []domain.ProgressStatus{domain.StatusPending, domain.StatusInProgress}

type progressRepository struct {
	db *gorm.DB
}

// NewProgressRepository creates a new instance of ProgressRepository
func NewProgressRepository(db *gorm.DB) ports.ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) CreateProgress(ctx context.Context, rows []domain.SubmissionWorkflowProgress) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&domain.SubmissionWorkflowProgress{}).
			Where("submission_id = ?", rows[0].SubmissionID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return domain.Conflict("create progress", nil)
		}
		return tx.Create(&rows).Error
	})
	// A concurrent initializer that slipped past the count trips the unique
	// (submission_id, step_id) index instead.
	return translate("create progress", err)
}

func (r *progressRepository) GetProgress(ctx context.Context, id uuid.UUID) (*domain.SubmissionWorkflowProgress, error) {
	var row domain.SubmissionWorkflowProgress
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, translate("get progress", err)
	}
	return &row, nil
}

func (r *progressRepository) ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]domain.SubmissionWorkflowProgress, error) {
	var rows []domain.SubmissionWorkflowProgress
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("step_order, created_at, step_name").
		Find(&rows).Error
	return rows, translate("list progress", err)
}

type rowVersion struct {
	ID      uuid.UUID
	Version int
}

// SaveTransition locks every row of the submission, checks the versions the
// transition was computed from, then writes the changed rows under their
// own version guard. Any mismatch rolls the transaction back with a
// conflict.
func (r *progressRepository) SaveTransition(ctx context.Context, t ports.Transition) error {
	if len(t.Changed) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []rowVersion
		if err := lockSubmission(tx, t.SubmissionID).Find(&current).Error; err != nil {
			return err
		}
		if len(current) != len(t.Read) {
			return domain.Conflict("save transition", nil)
		}
		for _, c := range current {
			if read, ok := t.Read[c.ID]; !ok || read != c.Version {
				return domain.Conflict("save transition", nil)
			}
		}

		now := time.Now().UTC()
		for i := range t.Changed {
			row := t.Changed[i]
			expected := row.Version
			row.Version = expected + 1
			row.UpdatedAt = now

			result := guardedUpdate(tx, &row, expected)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return domain.Conflict("save transition", nil)
			}
		}
		return nil
	})
	return translate("save transition", err)
}

// lockSubmission selects the id and version of every row of the submission
// FOR UPDATE, serializing transitions of one submission.
func lockSubmission(tx *gorm.DB, submissionID uuid.UUID) *gorm.DB {
	return tx.Model(&domain.SubmissionWorkflowProgress{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "version").
		Where("submission_id = ?", submissionID).
		Order("id")
}

func guardedUpdate(tx *gorm.DB, row *domain.SubmissionWorkflowProgress, expected int) *gorm.DB {
	return tx.Model(row).
		Where("version = ?", expected).
		Select("*").
		Omit("id", "submission_id", "created_at").
		Updates(row)
}

func (r *progressRepository) CountByStep(ctx context.Context, stepID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.SubmissionWorkflowProgress{}).
		Where("step_id = ?", stepID).
		Count(&count).Error
	return count, translate("count progress", err)
}

func (r *progressRepository) FindOverdue(ctx context.Context, now time.Time) ([]domain.SubmissionWorkflowProgress, error) {
	var rows []domain.SubmissionWorkflowProgress
	err := r.open(ctx).
		Where("due_date < ?", now).
		Where("escalation_role_id IS NOT NULL AND escalated_at IS NULL").
		Order("due_date, step_order").
		Find(&rows).Error
	return rows, translate("find overdue", err)
}

func (r *progressRepository) FindAutoApprovable(ctx context.Context, submissionID *uuid.UUID) ([]domain.SubmissionWorkflowProgress, error) {
	q := r.open(ctx).Where("auto_approve IS NOT NULL")
	if submissionID != nil {
		q = q.Where("submission_id = ?", *submissionID)
	}
	var rows []domain.SubmissionWorkflowProgress
	err := q.Order("submission_id, step_order").Find(&rows).Error
	return rows, translate("find auto-approvable", err)
}

func (r *progressRepository) FindActionable(ctx context.Context, filter ports.ActionableFilter) ([]domain.SubmissionWorkflowProgress, error) {
	mine := r.db.Where("assigned_to = ?", filter.UserID).Or("delegated_to = ?", filter.UserID)
	if len(filter.RoleIDs) > 0 {
		mine = mine.Or("assignee_type = ? AND assignee_role_id IN ?", domain.AssigneeRole, filter.RoleIDs)
	}
	if filter.DepartmentID != nil {
		mine = mine.Or("assignee_type = ? AND assignee_department_id = ?", domain.AssigneeDepartment, *filter.DepartmentID)
	}

	var rows []domain.SubmissionWorkflowProgress
	err := r.open(ctx).
		Where(mine).
		Order("due_date ASC NULLS LAST, step_order, created_at").
		Find(&rows).Error
	return rows, translate("find actionable", err)
}

// open scopes a query to activated rows that can still transition.
func (r *progressRepository) open(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&domain.SubmissionWorkflowProgress{}).
		Where("assigned_date IS NOT NULL AND status IN ?", openStatuses)
}
