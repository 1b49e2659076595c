package service

import (
	"context"
	"fmt"
	"sort"

	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/pkg/events"
	natsbus "discussion-companion-be/pkg/nats"
)

const (
	activityModule  = "Activity"
	activityDurable = "activity-log"
)

// EventSubscriber is satisfied by *nats.Subscriber.
type EventSubscriber interface {
	Subscribe(subject string, durableName string, handler natsbus.EventHandler) error
}

// IConsumerService records one activity line per domain event.
type IConsumerService interface {
	Consume(ctx context.Context) error
	Handle(ctx context.Context, event events.Event) error
}

type consumerService struct {
	subscriber EventSubscriber
	logger     logger.ILogger
}

func NewConsumerService(subscriber EventSubscriber, log logger.ILogger) IConsumerService {
	return &consumerService{subscriber: subscriber, logger: log}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	if err := cs.subscriber.Subscribe(natsbus.Subject(">"), activityDurable, cs.Handle); err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}
	cs.logger.Info(activityModule, "Consuming domain events", map[string]interface{}{
		"durable": activityDurable,
	})
	return nil
}

func (cs *consumerService) Handle(_ context.Context, event events.Event) error {
	details := map[string]interface{}{
		"event":       event.EventType(),
		"occurred_at": event.Timestamp(),
	}
	payload := event.Payload()
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		details[k] = payload[k]
	}

	switch event.EventType() {
	case events.DiscussionCreated, events.DiscussionPersisted, events.DiscussionDeleted,
		events.ChitChatSaved, events.AuthSignedIn, events.AuthSignedOut, events.UserDisabled:
		cs.logger.Info(activityModule, "Activity", details)
	default:
		cs.logger.Debug(activityModule, "Unrecognised event", details)
	}
	return nil
}
