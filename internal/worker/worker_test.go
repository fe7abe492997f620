package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-stepflow/internal/observability"
	"go-stepflow/internal/service"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSweeper struct {
	mu          sync.Mutex
	escalations int
	evaluated   []uuid.UUID
	err         error
}

func (f *fakeSweeper) ProcessEscalations(context.Context) (service.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalations++
	return service.SweepResult{Examined: 2, Applied: 1}, f.err
}

func (f *fakeSweeper) ProcessAutoApprovals(context.Context) (service.SweepResult, error) {
	return service.SweepResult{}, nil
}

func (f *fakeSweeper) EvaluateAutoApprovals(_ context.Context, id uuid.UUID) (service.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, id)
	return service.SweepResult{Examined: 1, Applied: 1}, nil
}

func (f *fakeSweeper) evaluatedIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.evaluated...)
}

type chanQueue struct {
	ch chan string
}

func (q chanQueue) Push(_ context.Context, id string) error {
	q.ch <- id
	return nil
}

func (q chanQueue) Pop(ctx context.Context) (string, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(20 * time.Millisecond):
		return "", nil
	}
}

func TestInitRegistry(t *testing.T) {
	reg := InitRegistry(&fakeSweeper{})
	assert.Len(t, reg, 2)
	assert.Contains(t, reg, JobEscalation)
	assert.Contains(t, reg, JobAutoApproval)
}

func TestScheduler_RunJobRecordsDuration(t *testing.T) {
	sweeper := &fakeSweeper{}
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	s := NewScheduler(InitRegistry(sweeper), metrics, zap.NewNop())

	res, err := s.RunJob(context.Background(), JobEscalation)
	require.NoError(t, err)
	assert.Equal(t, service.SweepResult{Examined: 2, Applied: 1}, res)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.SweepDuration))

	sweeper.err = errors.New("store down")
	_, err = s.RunJob(context.Background(), JobEscalation)
	assert.Error(t, err)

	_, err = s.RunJob(context.Background(), "reindex")
	assert.Error(t, err)
}

func TestScheduler_Schedule(t *testing.T) {
	sweeper := &fakeSweeper{}
	s := NewScheduler(InitRegistry(sweeper), nil, zap.NewNop())

	assert.Error(t, s.Schedule("reindex", "@every 1s"))
	assert.Error(t, s.Schedule(JobEscalation, "not a schedule"))
	require.NoError(t, s.Schedule(JobEscalation, "@every 1s"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	require.Eventually(t, func() bool {
		sweeper.mu.Lock()
		defer sweeper.mu.Unlock()
		return sweeper.escalations > 0
	}, 3*time.Second, 20*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
}

func TestPool_DrainsQueue(t *testing.T) {
	sweeper := &fakeSweeper{}
	q := chanQueue{ch: make(chan string, 4)}
	p := NewPool(q, sweeper, zap.NewNop())

	a, b := uuid.New(), uuid.New()
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, a.String()))
	require.NoError(t, q.Push(ctx, "not-a-uuid"))
	require.NoError(t, q.Push(ctx, b.String()))

	runCtx, cancel := context.WithCancel(ctx)
	p.StartPool(runCtx, 2)
	require.Eventually(t, func() bool { return len(sweeper.evaluatedIDs()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	p.Wait()

	assert.ElementsMatch(t, []uuid.UUID{a, b}, sweeper.evaluatedIDs())
}

func TestPool_ProcessNextOnEmptyQueue(t *testing.T) {
	sweeper := &fakeSweeper{}
	p := NewPool(chanQueue{ch: make(chan string)}, sweeper, zap.NewNop())

	assert.True(t, p.ProcessNext(context.Background()))
	assert.Empty(t, sweeper.evaluatedIDs())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, p.ProcessNext(ctx))
}
