package memory

import (
	"context"
	"slices"
	"sort"

	"go-stepflow/internal/domain"

	"github.com/google/uuid"
)

func (s *Store) GetSubmission(_ context.Context, id uuid.UUID) (*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.submissions[id]
	if !ok {
		return nil, domain.NotFound("get submission", "submission %s not found", id)
	}
	return &sub, nil
}

func (s *Store) SetSubmissionStatus(_ context.Context, id uuid.UUID, status domain.SubmissionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[id]
	if !ok {
		return domain.NotFound("set submission status", "submission %s not found", id)
	}
	sub.Status = status
	s.submissions[id] = sub
	return nil
}

func (s *Store) ListResponses(_ context.Context, submissionID uuid.UUID) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.responses[submissionID]), nil
}

func (s *Store) GetTemplateBinding(_ context.Context, templateID uuid.UUID) (*domain.TemplateBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.templates[templateID]
	if !ok {
		return nil, domain.NotFound("get template", "template %s not found", templateID)
	}
	return &b, nil
}

func (s *Store) CountTemplatesUsing(_ context.Context, workflowID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, b := range s.templates {
		if b.WorkflowID != nil && *b.WorkflowID == workflowID {
			n++
		}
	}
	return n, nil
}

func (s *Store) Membership(_ context.Context, userID uuid.UUID) (domain.ActorContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok || !u.active {
		return domain.ActorContext{}, domain.NotFound("membership", "user %s not found", userID)
	}
	return domain.ActorContext{
		UserID:       u.id,
		RoleIDs:      slices.Clone(u.roles),
		DepartmentID: u.departmentID,
	}, nil
}

func (s *Store) FirstActiveUserWithRole(_ context.Context, roleID uuid.UUID) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var holders []*user
	for _, u := range s.users {
		if u.active && slices.Contains(u.roles, roleID) {
			holders = append(holders, u)
		}
	}
	if len(holders) == 0 {
		return uuid.Nil, nil
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].seq < holders[j].seq })
	return holders[0].id, nil
}
