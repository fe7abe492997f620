// Package validation checks workflow definitions: the structure of the step
// graph, the fit of a definition to a template's submission mode, and single
// steps as they are written.
package validation

import (
	"fmt"
	"slices"
	"strings"

	"go-stepflow/internal/domain"

	"github.com/google/uuid"
)

// Result collects blocking errors and non-blocking warnings.
type Result struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r Result) Valid() bool { return len(r.Errors) == 0 }

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) Merge(other Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Err converts the errors of r into a validation error, or nil when valid.
func (r Result) Err(op string) error {
	if r.Valid() {
		return nil
	}
	return domain.Validation(op, "workflow definition is invalid", r.Errors...)
}

// Definition checks the structure of a step set.
func Definition(steps []domain.WorkflowStep) Result {
	var res Result
	if len(steps) == 0 {
		res.errorf("workflow must have at least one step")
		return res
	}

	byID := make(map[uuid.UUID]domain.WorkflowStep, len(steps))
	byOrder := make(map[int][]domain.WorkflowStep)
	for _, s := range steps {
		byID[s.ID] = s
		byOrder[s.StepOrder] = append(byOrder[s.StepOrder], s)
	}

	orders := make([]int, 0, len(byOrder))
	for o := range byOrder {
		orders = append(orders, o)
	}
	slices.Sort(orders)
	for _, o := range orders {
		group := byOrder[o]
		if len(group) < 2 {
			continue
		}
		if slices.ContainsFunc(group, func(s domain.WorkflowStep) bool { return !s.IsParallel }) {
			res.errorf("steps %s share order %d but are not all marked parallel", stepNames(group), o)
		}
	}

	for _, s := range steps {
		if !s.ActionCode.Valid() {
			res.errorf("step %q has unknown action %q", s.Name, s.ActionCode)
		}
		for _, dep := range s.DependsOnStepIDs {
			if dep == s.ID {
				res.errorf("step %q depends on itself", s.Name)
				continue
			}
			target, ok := byID[dep]
			if !ok {
				res.warnf("step %q depends on unknown step %s", s.Name, dep)
				continue
			}
			if target.StepOrder > s.StepOrder {
				res.warnf("step %q depends on later step %q", s.Name, target.Name)
			}
		}
		if _, err := s.Assignee.Variant(); err != nil {
			res.warnf("step %q: %v", s.Name, err)
		}
	}

	if cycle := FindCycle(steps); len(cycle) > 1 {
		names := make([]string, len(cycle))
		for i, id := range cycle {
			names[i] = byID[id].Name
		}
		res.errorf("dependency cycle: %s", strings.Join(names, " -> "))
	}
	return res
}

// FindCycle returns one dependency cycle of length two or more as a path
// whose first and last elements are equal, or nil. Self references are left
// to the caller.
func FindCycle(steps []domain.WorkflowStep) []uuid.UUID {
	deps := make(map[uuid.UUID][]uuid.UUID, len(steps))
	for _, s := range steps {
		for _, d := range s.DependsOnStepIDs {
			if d != s.ID {
				deps[s.ID] = append(deps[s.ID], d)
			}
		}
	}

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[uuid.UUID]int, len(steps))
	var stack []uuid.UUID
	var cycle []uuid.UUID

	var visit func(id uuid.UUID) bool
	visit = func(id uuid.UUID) bool {
		state[id] = onStack
		stack = append(stack, id)
		for _, next := range deps[id] {
			switch state[next] {
			case onStack:
				start := slices.Index(stack, next)
				cycle = append(slices.Clone(stack[start:]), next)
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, s := range steps {
		if state[s.ID] == unvisited && visit(s.ID) {
			return cycle
		}
	}
	return nil
}

// ForMode checks a definition against the submission mode of the template it
// is bound to.
func ForMode(steps []domain.WorkflowStep, binding domain.TemplateBinding) Result {
	var res Result
	switch binding.Mode {
	case domain.ModeIndividual:
		hasApproval := false
		for _, s := range steps {
			if s.TargetType != domain.TargetSubmission {
				res.errorf("step %q must target the whole submission in individual mode", s.Name)
			}
			if s.ActionCode == domain.ActionFill {
				res.errorf("step %q: fill actions are not allowed in individual mode", s.Name)
			}
			if s.ActionCode.IsApprovalFamily() {
				hasApproval = true
			}
		}
		if !hasApproval {
			res.errorf("individual mode requires at least one approval step")
		}

	case domain.ModeCollaborative:
		var fills []domain.WorkflowStep
		firstApproval := 0
		for _, s := range steps {
			if s.ActionCode == domain.ActionFill {
				fills = append(fills, s)
			}
			if s.ActionCode.IsApprovalFamily() && (firstApproval == 0 || s.StepOrder < firstApproval) {
				firstApproval = s.StepOrder
			}
		}
		if len(fills) == 0 {
			res.errorf("collaborative mode requires at least one fill step")
			return res
		}
		covered := make(map[uuid.UUID]bool)
		for _, f := range fills {
			if f.TargetType == domain.TargetSubmission || f.TargetID == nil {
				res.errorf("fill step %q must target a section or field", f.Name)
			} else if f.TargetType == domain.TargetSection {
				covered[*f.TargetID] = true
			} else if section, ok := binding.FieldSections[*f.TargetID]; ok {
				covered[section] = true
			}
			if firstApproval != 0 && f.StepOrder >= firstApproval {
				res.errorf("fill step %q must come before all approval steps", f.Name)
			}
		}
		if len(steps) > 1 {
			for _, section := range binding.SectionIDs {
				if !covered[section] {
					res.errorf("section %s is not covered by any fill step", section)
				}
			}
		}

	default:
		res.errorf("unknown submission mode %q", binding.Mode)
	}
	return res
}

// Step applies the rules every step must satisfy before it is persisted.
// siblings are the other steps of the same definition.
func Step(step domain.WorkflowStep, siblings []domain.WorkflowStep) Result {
	var res Result
	if strings.TrimSpace(step.Name) == "" {
		res.errorf("step name is required")
	}
	if step.StepOrder < 1 {
		res.errorf("step %q: order must be at least 1", step.Name)
	}
	if !step.ActionCode.Valid() {
		res.errorf("step %q has unknown action %q", step.Name, step.ActionCode)
	}
	if !step.TargetType.Valid() {
		res.errorf("step %q has unknown target type %q", step.Name, step.TargetType)
	} else if step.TargetType != domain.TargetSubmission && step.TargetID == nil {
		res.errorf("step %q: %s target requires a target id", step.Name, step.TargetType)
	}
	if _, err := step.Assignee.Variant(); err != nil {
		res.errorf("step %q: %v", step.Name, err)
	}
	if step.DueDays != nil && *step.DueDays < 0 {
		res.errorf("step %q: due days cannot be negative", step.Name)
	}
	if step.AutoApprove != nil {
		if err := step.AutoApprove.Validate(); err != nil {
			res.errorf("step %q: %v", step.Name, err)
		}
	}
	if slices.Contains(step.DependsOnStepIDs, step.ID) {
		res.errorf("step %q depends on itself", step.Name)
	}

	all := append(slices.Clone(siblings), step)
	if cycle := FindCycle(all); len(cycle) > 1 && slices.Contains(cycle, step.ID) {
		res.errorf("step %q would create a dependency cycle", step.Name)
	}
	return res
}

// StepDraft validates one step while a definition is being authored for a
// template. Order collisions are warnings here because the author may still
// be rearranging steps.
func StepDraft(draft domain.WorkflowStep, existing []domain.WorkflowStep, binding domain.TemplateBinding) Result {
	others := slices.DeleteFunc(slices.Clone(existing), func(s domain.WorkflowStep) bool { return s.ID == draft.ID })
	res := Step(draft, others)

	for _, s := range others {
		if s.StepOrder == draft.StepOrder && !(s.IsParallel && draft.IsParallel) {
			res.warnf("order %d is already used by step %q", draft.StepOrder, s.Name)
		}
	}

	switch binding.Mode {
	case domain.ModeIndividual:
		if draft.TargetType != domain.TargetSubmission {
			res.errorf("step %q must target the whole submission in individual mode", draft.Name)
		}
		if draft.ActionCode == domain.ActionFill {
			res.errorf("step %q: fill actions are not allowed in individual mode", draft.Name)
		}
		if t := draft.Assignee.Type; t == domain.AssigneeSubmitter || t == domain.AssigneeFieldValue {
			res.warnf("step %q: a %s assignee lets the submitter act on their own submission", draft.Name, t)
		}

	case domain.ModeCollaborative:
		if draft.ActionCode == domain.ActionFill {
			if draft.TargetType == domain.TargetSubmission {
				res.errorf("fill step %q must target a section or field", draft.Name)
			}
			for _, s := range others {
				if s.ActionCode.IsApprovalFamily() && s.StepOrder <= draft.StepOrder {
					res.errorf("fill step %q must come before approval step %q", draft.Name, s.Name)
				}
			}
		}
		if draft.ActionCode.IsApprovalFamily() {
			for _, s := range others {
				if s.ActionCode == domain.ActionFill && s.StepOrder >= draft.StepOrder {
					res.errorf("approval step %q must come after fill step %q", draft.Name, s.Name)
				}
			}
		}
	}
	return res
}

func stepNames(steps []domain.WorkflowStep) string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = fmt.Sprintf("%q", s.Name)
	}
	return strings.Join(names, ", ")
}
