// Package memory holds in-memory implementations of the store and provider
// ports. They back the test suites and the "memory" store driver.
package memory

import (
	"sync"

	"go-stepflow/internal/domain"

	"github.com/google/uuid"
)

type user struct {
	id           uuid.UUID
	roles        []uuid.UUID
	departmentID *uuid.UUID
	active       bool
	seq          int
}

// Store implements DefinitionRepository, ProgressRepository,
// SubmissionProvider, ResponseStore, TemplateProvider and IdentityProvider
// over maps guarded by one lock, so a transition is atomic across rows.
type Store struct {
	mu sync.RWMutex

	definitions map[uuid.UUID]domain.WorkflowDefinition // steps kept separately
	steps       map[uuid.UUID]domain.WorkflowStep
	actions     []domain.WorkflowAction
	progress    map[uuid.UUID]domain.SubmissionWorkflowProgress
	submissions map[uuid.UUID]domain.Submission
	responses   map[uuid.UUID][]domain.Response
	templates   map[uuid.UUID]domain.TemplateBinding
	users       map[uuid.UUID]*user
}

// NewStore returns an empty store seeded with the default action catalog.
func NewStore() *Store {
	return &Store{
		definitions: make(map[uuid.UUID]domain.WorkflowDefinition),
		steps:       make(map[uuid.UUID]domain.WorkflowStep),
		actions:     domain.DefaultActions(),
		progress:    make(map[uuid.UUID]domain.SubmissionWorkflowProgress),
		submissions: make(map[uuid.UUID]domain.Submission),
		responses:   make(map[uuid.UUID][]domain.Response),
		templates:   make(map[uuid.UUID]domain.TemplateBinding),
		users:       make(map[uuid.UUID]*user),
	}
}

// PutSubmission adds or replaces a submission.
func (s *Store) PutSubmission(sub domain.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.Status == "" {
		sub.Status = domain.SubmissionSubmitted
	}
	s.submissions[sub.ID] = sub
}

// PutResponses replaces the responses of a submission.
func (s *Store) PutResponses(submissionID uuid.UUID, responses ...domain.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Response, len(responses))
	for i, r := range responses {
		r.SubmissionID = submissionID
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		out[i] = r
	}
	s.responses[submissionID] = out
}

func (s *Store) PutTemplate(binding domain.TemplateBinding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[binding.TemplateID] = binding
}

// PutUser registers a user with their roles and department. Users are
// matched for escalation in registration order.
func (s *Store) PutUser(id uuid.UUID, active bool, departmentID *uuid.UUID, roles ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := len(s.users)
	if u, ok := s.users[id]; ok {
		seq = u.seq
	}
	s.users[id] = &user{id: id, roles: roles, departmentID: departmentID, active: active, seq: seq}
}

// ProgressLen returns the number of progress rows. For testing.
func (s *Store) ProgressLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.progress)
}
