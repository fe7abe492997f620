package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go-stepflow/internal/config"
	"go-stepflow/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestNewRedisClient_UnreachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestRedisQueue_FIFO(t *testing.T) {
	mr, client := newTestClient(t)
	q := NewRedisQueue(client, time.Second)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "a"))
	require.NoError(t, q.Push(ctx, "b"))
	list, err := mr.List(ReevaluationQueue)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, list)

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", got)
	got, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}

func TestRedisQueue_PopTimesOutEmpty(t *testing.T) {
	_, client := newTestClient(t)
	q := NewRedisQueue(client, time.Second)

	got, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisEventBus_PublishesWorkflowEvents(t *testing.T) {
	_, client := newTestClient(t)
	bus := NewRedisEventBus(client, zap.NewNop())
	ctx := context.Background()

	sub := client.Subscribe(ctx, ChannelStepActivated, ChannelWorkflowFinished)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	activated := domain.StepActivatedEvent{SubmissionID: uuid.New(), ProgressID: uuid.New(), StepName: "Review", StepOrder: 1}
	require.NoError(t, bus.PublishStepActivated(ctx, activated))
	finished := domain.WorkflowFinishedEvent{SubmissionID: activated.SubmissionID, Outcome: domain.SubmissionApproved, FinishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, bus.PublishWorkflowFinished(ctx, finished))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, ChannelStepActivated, msg.Channel)
	var gotActivated domain.StepActivatedEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &gotActivated))
	assert.Equal(t, activated, gotActivated)

	msg, err = sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, ChannelWorkflowFinished, msg.Channel)
	var gotFinished domain.WorkflowFinishedEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &gotFinished))
	assert.Equal(t, finished, gotFinished)
}

func TestRedisEventBus_SubscribeToSubmissionEvents(t *testing.T) {
	mr, client := newTestClient(t)
	bus := NewRedisEventBus(client, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.SubscribeToSubmissionEvents(ctx)
	require.NoError(t, err)

	created := domain.SubmissionEvent{Type: domain.SubmissionCreated, SubmissionID: uuid.New()}
	require.NoError(t, bus.PublishSubmissionEvent(ctx, created))
	mr.Publish(ChannelSubmissionResponses, "not json")
	changed := uuid.New()
	mr.Publish(ChannelSubmissionResponses, `{"submission_id":"`+changed.String()+`"}`)

	assert.Equal(t, created, receive(t, events))
	assert.Equal(t, domain.SubmissionEvent{Type: domain.SubmissionResponsesChanged, SubmissionID: changed}, receive(t, events),
		"malformed payloads are dropped and the type falls back to the channel")

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func receive(t *testing.T, events <-chan domain.SubmissionEvent) domain.SubmissionEvent {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return domain.SubmissionEvent{}
	}
}
