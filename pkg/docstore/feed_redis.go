package docstore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const redisFeedPrefix = "docstore:changes:"

// RedisFeed fans changes out to every instance sharing the Redis server.
type RedisFeed struct {
	rdb *redis.Client
}

func NewRedisFeed(rdb *redis.Client) *RedisFeed {
	return &RedisFeed{rdb: rdb}
}

func (f *RedisFeed) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, redisFeedPrefix+change.Path, payload).Err()
}

func (f *RedisFeed) Subscribe(ctx context.Context, path string) (<-chan Change, error) {
	pubsub := f.rdb.Subscribe(ctx, redisFeedPrefix+path)
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	ch := pubsub.Channel()
	out := make(chan Change, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (f *RedisFeed) Close() error {
	return nil
}
