package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	DiscussionCreated   = "discussion.created"
	DiscussionPersisted = "discussion.persisted"
	DiscussionDeleted   = "discussion.deleted"
	ChitChatSaved       = "chitchat.chat_saved"
	AuthSignedIn        = "auth.signed_in"
	AuthSignedOut       = "auth.signed_out"
	UserDisabled        = "user.disabled"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the dotted event code, e.g. "discussion.created".
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

// Publisher is implemented by the NATS publisher. Services treat a nil
// Publisher as "events disabled".
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func New(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now().UTC()}
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

type envelope struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurredAt"`
}

// Encode is the wire form: the type and timestamp travel with the payload.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(envelope{Type: e.EventType(), Data: e.Payload(), OccurredAt: e.Timestamp()})
}

func Decode(raw []byte) (BaseEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return BaseEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if env.Type == "" {
		return BaseEvent{}, fmt.Errorf("decode event: missing type")
	}
	return BaseEvent{Type: env.Type, Data: env.Data, OccurredAt: env.OccurredAt}, nil
}
