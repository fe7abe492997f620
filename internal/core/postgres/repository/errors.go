package repository

import (
	"errors"

	"go-stepflow/internal/domain"

	"gorm.io/gorm"
)

// translate maps gorm errors onto domain errors. Errors that are already
// domain errors pass through untouched.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.NotFound(op, "record not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.Conflict(op, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return domain.PreconditionFailed(op, "referenced record does not exist")
	}
	return err
}
