package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"go-stepflow/internal/domain"

	"github.com/google/uuid"
)

func (s *Store) CreateDefinition(_ context.Context, def *domain.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.definitions[def.ID]; exists {
		return domain.Conflict("create definition", nil)
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	for i := range def.Steps {
		def.Steps[i].WorkflowID = def.ID
		def.Steps[i].CreatedAt = now
		def.Steps[i].UpdatedAt = now
		s.steps[def.Steps[i].ID] = def.Steps[i]
	}
	stored := *def
	stored.Steps = nil
	s.definitions[def.ID] = stored
	return nil
}

func (s *Store) GetDefinition(_ context.Context, id uuid.UUID) (*domain.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[id]
	if !ok {
		return nil, domain.NotFound("get definition", "workflow definition %s not found", id)
	}
	def.Steps = s.stepsOf(id)
	return &def, nil
}

func (s *Store) ListDefinitions(_ context.Context, activeOnly bool) ([]domain.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.WorkflowDefinition
	for _, def := range s.definitions {
		if activeOnly && !def.IsActive {
			continue
		}
		def.Steps = s.stepsOf(def.ID)
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) UpdateDefinition(_ context.Context, def *domain.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.definitions[def.ID]
	if !ok {
		return domain.NotFound("update definition", "workflow definition %s not found", def.ID)
	}
	existing.Name = def.Name
	existing.Description = def.Description
	existing.IsActive = def.IsActive
	existing.UpdatedAt = time.Now().UTC()
	s.definitions[def.ID] = existing
	return nil
}

func (s *Store) DeleteDefinition(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[id]; !ok {
		return domain.NotFound("delete definition", "workflow definition %s not found", id)
	}
	for stepID, st := range s.steps {
		if st.WorkflowID == id {
			delete(s.steps, stepID)
		}
	}
	delete(s.definitions, id)
	return nil
}

func (s *Store) GetStep(_ context.Context, id uuid.UUID) (*domain.WorkflowStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.steps[id]
	if !ok {
		return nil, domain.NotFound("get step", "workflow step %s not found", id)
	}
	return &st, nil
}

func (s *Store) CreateStep(_ context.Context, step *domain.WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[step.WorkflowID]; !ok {
		return domain.NotFound("create step", "workflow definition %s not found", step.WorkflowID)
	}
	now := time.Now().UTC()
	step.CreatedAt, step.UpdatedAt = now, now
	s.steps[step.ID] = *step
	return nil
}

func (s *Store) UpdateStep(_ context.Context, step *domain.WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.steps[step.ID]; !ok {
		return domain.NotFound("update step", "workflow step %s not found", step.ID)
	}
	step.UpdatedAt = time.Now().UTC()
	s.steps[step.ID] = *step
	return nil
}

func (s *Store) DeleteStep(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.steps[id]
	if !ok {
		return domain.NotFound("delete step", "workflow step %s not found", id)
	}
	delete(s.steps, id)
	for sid, sibling := range s.steps {
		if sibling.WorkflowID != step.WorkflowID || !slices.Contains(sibling.DependsOnStepIDs, id) {
			continue
		}
		sibling.DependsOnStepIDs = slices.DeleteFunc(slices.Clone(sibling.DependsOnStepIDs), func(d uuid.UUID) bool { return d == id })
		s.steps[sid] = sibling
	}
	return nil
}

func (s *Store) ReorderSteps(_ context.Context, workflowID uuid.UUID, orders map[uuid.UUID]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range orders {
		if st, ok := s.steps[id]; !ok || st.WorkflowID != workflowID {
			return domain.NotFound("reorder steps", "workflow step %s not found in workflow %s", id, workflowID)
		}
	}
	now := time.Now().UTC()
	for id, order := range orders {
		st := s.steps[id]
		st.StepOrder = order
		st.UpdatedAt = now
		s.steps[id] = st
	}
	return nil
}

func (s *Store) ListActions(_ context.Context) ([]domain.WorkflowAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.actions), nil
}

func (s *Store) stepsOf(workflowID uuid.UUID) []domain.WorkflowStep {
	var steps []domain.WorkflowStep
	for _, st := range s.steps {
		if st.WorkflowID == workflowID {
			steps = append(steps, st)
		}
	}
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].StepOrder != steps[j].StepOrder {
			return steps[i].StepOrder < steps[j].StepOrder
		}
		if !steps[i].CreatedAt.Equal(steps[j].CreatedAt) {
			return steps[i].CreatedAt.Before(steps[j].CreatedAt)
		}
		return steps[i].Name < steps[j].Name
	})
	return steps
}
