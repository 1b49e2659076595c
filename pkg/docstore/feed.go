package docstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Change announces that the document at Path was written or deleted.
type Change struct {
	Path    string    `json:"path"`
	Deleted bool      `json:"deleted"`
	At      time.Time `json:"at"`
}

// Feed carries change notifications between writers and watchers.
type Feed interface {
	Publish(ctx context.Context, change Change) error
	// Subscribe returns changes for one document path. The channel is closed
	// once ctx is done.
	Subscribe(ctx context.Context, path string) (<-chan Change, error)
	Close() error
}

const localFeedTopic = "docstore.changes"

// LocalFeed is an in-process feed over a watermill GoChannel.
type LocalFeed struct {
	pubSub *gochannel.GoChannel
}

func NewLocalFeed(logger watermill.LoggerAdapter) *LocalFeed {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &LocalFeed{
		pubSub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger),
	}
}

func (f *LocalFeed) Publish(_ context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return f.pubSub.Publish(localFeedTopic, message.NewMessage(watermill.NewUUID(), payload))
}

func (f *LocalFeed) Subscribe(ctx context.Context, path string) (<-chan Change, error) {
	messages, err := f.pubSub.Subscribe(ctx, localFeedTopic)
	if err != nil {
		return nil, err
	}

	out := make(chan Change, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			var change Change
			err := json.Unmarshal(msg.Payload, &change)
			msg.Ack()
			if err != nil || change.Path != path {
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *LocalFeed) Close() error {
	return f.pubSub.Close()
}
