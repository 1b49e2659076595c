package nats

import (
	"context"
	"os"
	"testing"
	"time"

	"discussion-companion-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "events.discussion.created", Subject(events.DiscussionCreated))
}

func TestPublishSubscribe(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}

	pub, err := NewPublisher(url, nil)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := NewSubscriber(url, nil)
	require.NoError(t, err)
	defer sub.Close()

	marker := uuid.NewString()
	received := make(chan events.Event, 8)
	require.NoError(t, sub.Subscribe(Subject(events.DiscussionDeleted), "test-"+marker[:8], func(_ context.Context, ev events.Event) error {
		if ev.Payload()["marker"] == marker {
			received <- ev
		}
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pub.Publish(ctx, events.New(events.DiscussionDeleted, map[string]interface{}{"marker": marker})))

	select {
	case ev := <-received:
		assert.Equal(t, events.DiscussionDeleted, ev.EventType())
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}
