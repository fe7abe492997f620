package service

import (
	"context"
	"testing"
	"time"

	"go-stepflow/internal/core/memory"
	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"
	"go-stepflow/internal/observability"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *memory.Store
	notifier *memory.Notifier
	metrics  *observability.Metrics
	engine   WorkflowEngine
	defs     DefinitionService
	now      time.Time
	author   domain.ActorContext
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithProgress(t, nil, opts...)
}

// newFixtureWithProgress lets a test wrap the progress repository.
func newFixtureWithProgress(t *testing.T, wrap func(ports.ProgressRepository) ports.ProgressRepository, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store:    store,
		notifier: memory.NewNotifier(),
		metrics:  observability.InitMetrics(prometheus.NewRegistry()),
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		author:   domain.ActorContext{UserID: uuid.New()},
	}
	var progress ports.ProgressRepository = store
	if wrap != nil {
		progress = wrap(store)
	}
	all := append([]Option{
		WithClock(func() time.Time { return f.now }),
		WithMetrics(f.metrics),
		WithRetryInterval(time.Millisecond),
	}, opts...)
	f.engine = NewWorkflowEngine(EngineDeps{
		Definitions: store,
		Progress:    progress,
		Submissions: store,
		Responses:   store,
		Templates:   store,
		Identity:    store,
		Notifier:    f.notifier,
	}, all...)
	f.defs = NewDefinitionService(store, progress, store, all...)
	return f
}

// user registers an active user and returns their actor context.
func (f *fixture) user(roles ...uuid.UUID) domain.ActorContext {
	id := uuid.New()
	f.store.PutUser(id, true, nil, roles...)
	return domain.ActorContext{UserID: id, RoleIDs: roles}
}

func (f *fixture) definition(t *testing.T, steps ...StepInput) *domain.WorkflowDefinition {
	t.Helper()
	def, err := f.defs.CreateDefinition(context.Background(), f.author, CreateDefinitionInput{Name: "Expense approval", Steps: steps})
	require.NoError(t, err)
	return def
}

// submit binds def to a fresh individual-mode template and creates a
// submission against it.
func (f *fixture) submit(def *domain.WorkflowDefinition, submitter uuid.UUID, responses ...domain.Response) uuid.UUID {
	templateID := uuid.New()
	f.store.PutTemplate(domain.TemplateBinding{TemplateID: templateID, WorkflowID: &def.ID, Mode: domain.ModeIndividual})
	subID := uuid.New()
	f.store.PutSubmission(domain.Submission{ID: subID, TemplateID: templateID, SubmittedBy: submitter, CreatedAt: f.now})
	f.store.PutResponses(subID, responses...)
	return subID
}

// start creates, submits and initializes a workflow in one go.
func (f *fixture) start(t *testing.T, steps ...StepInput) (uuid.UUID, *domain.WorkflowProgressView) {
	t.Helper()
	subID := f.submit(f.definition(t, steps...), uuid.New())
	view, err := f.engine.InitializeSubmissionWorkflow(context.Background(), subID)
	require.NoError(t, err)
	return subID, view
}

func (f *fixture) rows(t *testing.T, submissionID uuid.UUID) map[string]domain.SubmissionWorkflowProgress {
	t.Helper()
	view, err := f.engine.GetSubmissionProgress(context.Background(), submissionID)
	require.NoError(t, err)
	out := make(map[string]domain.SubmissionWorkflowProgress, len(view.Steps))
	for _, r := range view.Steps {
		out[r.StepName] = r
	}
	return out
}

func (f *fixture) submissionStatus(t *testing.T, id uuid.UUID) domain.SubmissionStatus {
	t.Helper()
	sub, err := f.store.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	return sub.Status
}

func userStep(order int, name string, action domain.ActionCode, user uuid.UUID) StepInput {
	return StepInput{
		StepOrder:  order,
		Name:       name,
		ActionCode: action,
		TargetType: domain.TargetSubmission,
		Assignee:   domain.NewAssigneeRule(domain.UserAssignee{UserID: user}),
	}
}

func roleStep(order int, name string, action domain.ActionCode, role uuid.UUID) StepInput {
	return StepInput{
		StepOrder:  order,
		Name:       name,
		ActionCode: action,
		TargetType: domain.TargetSubmission,
		Assignee:   domain.NewAssigneeRule(domain.RoleAssignee{RoleID: role}),
	}
}

func ptr[T any](v T) *T { return &v }
