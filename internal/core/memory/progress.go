package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
)

func (s *Store) CreateProgress(_ context.Context, rows []domain.SubmissionWorkflowProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}
	submissionID := rows[0].SubmissionID
	for _, p := range s.progress {
		if p.SubmissionID == submissionID {
			return domain.Conflict("create progress", fmt.Errorf("submission %s already has workflow progress", submissionID))
		}
	}
	for _, r := range rows {
		s.progress[r.ID] = r
	}
	return nil
}

func (s *Store) GetProgress(_ context.Context, id uuid.UUID) (*domain.SubmissionWorkflowProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[id]
	if !ok {
		return nil, domain.NotFound("get progress", "workflow progress %s not found", id)
	}
	return &p, nil
}

func (s *Store) ListBySubmission(_ context.Context, submissionID uuid.UUID) ([]domain.SubmissionWorkflowProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []domain.SubmissionWorkflowProgress
	for _, p := range s.progress {
		if p.SubmissionID == submissionID {
			rows = append(rows, p)
		}
	}
	domain.SortProgress(rows)
	return rows, nil
}

func (s *Store) SaveTransition(_ context.Context, t ports.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(t.Changed) == 0 {
		return nil
	}
	// Check the whole submission before writing any row, so a conflict leaves
	// nothing applied.
	seen := 0
	for _, p := range s.progress {
		if p.SubmissionID != t.SubmissionID {
			continue
		}
		seen++
		read, ok := t.Read[p.ID]
		if !ok || read != p.Version {
			return domain.Conflict("save transition",
				fmt.Errorf("progress %s version conflict (read %d, stored %d)", p.ID, read, p.Version))
		}
	}
	if seen != len(t.Read) {
		return domain.Conflict("save transition",
			fmt.Errorf("submission %s rows changed since they were read", t.SubmissionID))
	}
	for _, r := range t.Changed {
		if _, ok := t.Read[r.ID]; !ok {
			return domain.NotFound("save transition", "workflow progress %s not found", r.ID)
		}
	}
	now := time.Now().UTC()
	for _, r := range t.Changed {
		r.Version = s.progress[r.ID].Version + 1
		r.UpdatedAt = now
		s.progress[r.ID] = r
	}
	return nil
}

func (s *Store) CountByStep(_ context.Context, stepID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, p := range s.progress {
		if p.StepID == stepID {
			n++
		}
	}
	return n, nil
}

func (s *Store) FindOverdue(_ context.Context, now time.Time) ([]domain.SubmissionWorkflowProgress, error) {
	return s.filter(func(p domain.SubmissionWorkflowProgress) bool {
		return p.IsActive() && p.IsOverdue(now) && p.EscalationRoleID != nil && p.EscalatedAt == nil
	}), nil
}

func (s *Store) FindAutoApprovable(_ context.Context, submissionID *uuid.UUID) ([]domain.SubmissionWorkflowProgress, error) {
	return s.filter(func(p domain.SubmissionWorkflowProgress) bool {
		if submissionID != nil && p.SubmissionID != *submissionID {
			return false
		}
		return p.IsActive() && p.Status.IsActionable() && p.AutoApprove != nil
	}), nil
}

func (s *Store) FindActionable(_ context.Context, f ports.ActionableFilter) ([]domain.SubmissionWorkflowProgress, error) {
	actor := domain.ActorContext{UserID: f.UserID, RoleIDs: f.RoleIDs, DepartmentID: f.DepartmentID}
	rows := s.filter(func(p domain.SubmissionWorkflowProgress) bool {
		return p.IsActive() && p.Status.IsActionable() && p.CanBeActedOnBy(actor)
	})
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].DueDate, rows[j].DueDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return rows, nil
}

// filter returns matching rows ordered by submission and step order.
func (s *Store) filter(keep func(domain.SubmissionWorkflowProgress) bool) []domain.SubmissionWorkflowProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []domain.SubmissionWorkflowProgress
	for _, p := range s.progress {
		if keep(p) {
			rows = append(rows, p)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SubmissionID != rows[j].SubmissionID {
			return rows[i].SubmissionID.String() < rows[j].SubmissionID.String()
		}
		if rows[i].StepOrder != rows[j].StepOrder {
			return rows[i].StepOrder < rows[j].StepOrder
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})
	return rows
}
