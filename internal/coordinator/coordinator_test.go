package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-stepflow/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEngine struct {
	mu          sync.Mutex
	initialized []uuid.UUID
	err         error
}

func (f *fakeEngine) InitializeSubmissionWorkflow(_ context.Context, id uuid.UUID) (*domain.WorkflowProgressView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.initialized = append(f.initialized, id)
	return &domain.WorkflowProgressView{SubmissionID: id}, nil
}

type fakeQueue struct {
	mu     sync.Mutex
	pushed []string
}

func (q *fakeQueue) Push(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, id)
	return nil
}

func (q *fakeQueue) Pop(context.Context) (string, error) { return "", nil }

func (q *fakeQueue) items() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.pushed...)
}

type fakeSource struct {
	ch chan domain.SubmissionEvent
}

func (s fakeSource) SubscribeToSubmissionEvents(context.Context) (<-chan domain.SubmissionEvent, error) {
	return s.ch, nil
}

func TestCoordinator_Handle(t *testing.T) {
	engine, queue := &fakeEngine{}, &fakeQueue{}
	c := NewCoordinator(engine, queue, nil, zap.NewNop())
	ctx := context.Background()
	created, changed := uuid.New(), uuid.New()

	c.Handle(ctx, domain.SubmissionEvent{Type: domain.SubmissionCreated, SubmissionID: created})
	c.Handle(ctx, domain.SubmissionEvent{Type: domain.SubmissionResponsesChanged, SubmissionID: changed})
	c.Handle(ctx, domain.SubmissionEvent{Type: "archived", SubmissionID: uuid.New()})

	assert.Equal(t, []uuid.UUID{created}, engine.initialized)
	assert.Equal(t, []string{created.String(), changed.String()}, queue.items())
}

func TestCoordinator_HandleInitializeFailure(t *testing.T) {
	for _, err := range []error{
		domain.PreconditionFailed("initialize", "template has no workflow"),
		errors.New("database unavailable"),
	} {
		engine, queue := &fakeEngine{err: err}, &fakeQueue{}
		c := NewCoordinator(engine, queue, nil, zap.NewNop())

		c.Handle(context.Background(), domain.SubmissionEvent{Type: domain.SubmissionCreated, SubmissionID: uuid.New()})
		assert.Empty(t, queue.items(), "nothing is queued for %v", err)
	}
}

func TestCoordinator_StartStopsWhenStreamCloses(t *testing.T) {
	engine, queue := &fakeEngine{}, &fakeQueue{}
	src := fakeSource{ch: make(chan domain.SubmissionEvent)}
	c := NewCoordinator(engine, queue, src, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	id := uuid.New()
	src.ch <- domain.SubmissionEvent{Type: domain.SubmissionResponsesChanged, SubmissionID: id}
	close(src.ch)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop")
	}
	assert.Equal(t, []string{id.String()}, queue.items())
}
