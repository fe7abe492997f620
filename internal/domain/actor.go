package domain

import (
	"slices"

	"github.com/google/uuid"
)

// ActorContext identifies who is acting and what memberships they hold at
// the time of the call. A zero UserID means the system itself.
type ActorContext struct {
	UserID       uuid.UUID
	RoleIDs      []uuid.UUID
	DepartmentID *uuid.UUID
	ClientIP     string
}

func (a ActorContext) HasRole(roleID uuid.UUID) bool {
	return slices.Contains(a.RoleIDs, roleID)
}

func (a ActorContext) InDepartment(departmentID uuid.UUID) bool {
	return a.DepartmentID != nil && *a.DepartmentID == departmentID
}

func (a ActorContext) IsSystem() bool {
	return a.UserID == uuid.Nil
}
