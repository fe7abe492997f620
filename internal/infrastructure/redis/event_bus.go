package redis

import (
	"context"
	"encoding/json"
	"errors"

	"go-stepflow/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ChannelStepActivated    = "workflow:events:activated"
	ChannelStepEscalated    = "workflow:events:escalated"
	ChannelWorkflowFinished = "workflow:events:finished"

	ChannelSubmissionCreated   = "submission:events:created"
	ChannelSubmissionResponses = "submission:events:responses"
)

// RedisEventBus publishes workflow events and listens for submission
// lifecycle events over Redis pub/sub.
type RedisEventBus struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisEventBus(client *redis.Client, log *zap.Logger) *RedisEventBus {
	return &RedisEventBus{client: client, log: log.Named("event_bus")}
}

func (b *RedisEventBus) PublishStepActivated(ctx context.Context, event domain.StepActivatedEvent) error {
	return b.publish(ctx, ChannelStepActivated, event)
}

func (b *RedisEventBus) PublishStepEscalated(ctx context.Context, event domain.StepEscalatedEvent) error {
	return b.publish(ctx, ChannelStepEscalated, event)
}

func (b *RedisEventBus) PublishWorkflowFinished(ctx context.Context, event domain.WorkflowFinishedEvent) error {
	return b.publish(ctx, ChannelWorkflowFinished, event)
}

// PublishSubmissionEvent lets the submission service announce lifecycle
// changes on the channel matching the event type.
func (b *RedisEventBus) PublishSubmissionEvent(ctx context.Context, event domain.SubmissionEvent) error {
	channel := ChannelSubmissionCreated
	if event.Type == domain.SubmissionResponsesChanged {
		channel = ChannelSubmissionResponses
	}
	return b.publish(ctx, channel, event)
}

func (b *RedisEventBus) publish(ctx context.Context, channel string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, payload).Err()
}

// SubscribeToSubmissionEvents opens a continuous stream for the Coordinator.
// The subscription is confirmed before it returns; the channel closes when
// ctx is done.
func (b *RedisEventBus) SubscribeToSubmissionEvents(ctx context.Context) (<-chan domain.SubmissionEvent, error) {
	pubsub := b.client.Subscribe(ctx, ChannelSubmissionCreated, ChannelSubmissionResponses)
	for confirmed := 0; confirmed < 2; {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			pubsub.Close()
			return nil, err
		}
		if _, ok := msg.(*redis.Subscription); ok {
			confirmed++
		}
	}

	msgChan := make(chan domain.SubmissionEvent)

	// A blocked read does not watch ctx; closing the subscription unblocks it.
	go func() {
		<-ctx.Done()
		pubsub.Close()
	}()

	go func() {
		defer close(msgChan)
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
					return
				}
				b.log.Warn("receiving submission event", zap.Error(err))
				continue
			}

			event, err := decodeSubmissionEvent(msg)
			if err != nil {
				b.log.Warn("dropping malformed submission event",
					zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}

			select {
			case msgChan <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgChan, nil
}

// decodeSubmissionEvent reads the payload and takes the type from the
// channel when the publisher left it out.
func decodeSubmissionEvent(msg *redis.Message) (domain.SubmissionEvent, error) {
	var event domain.SubmissionEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		return event, err
	}
	if event.Type == "" {
		switch msg.Channel {
		case ChannelSubmissionCreated:
			event.Type = domain.SubmissionCreated
		case ChannelSubmissionResponses:
			event.Type = domain.SubmissionResponsesChanged
		}
	}
	return event, nil
}
