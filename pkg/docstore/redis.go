package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisDocPrefix   = "docstore:"
	redisIndexPrefix = "docstore:idx:"
	// Hash field holding the write time; document fields never start with "__".
	redisUpdatedField = "__updated_at"
	redisMaxTxRetries = 10
)

// RedisStore keeps each document as a hash of JSON-encoded fields and each
// collection as a set of document ids.
type RedisStore struct {
	rdb  *redis.Client
	feed Feed
	opts options
}

func NewRedisStore(rdb *redis.Client, feed Feed, opts ...Option) *RedisStore {
	if feed == nil {
		feed = NewRedisFeed(rdb)
	}
	return &RedisStore{rdb: rdb, feed: feed, opts: buildOptions(opts)}
}

func (s *RedisStore) Get(ctx context.Context, ref Ref) (*Document, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	values, err := s.rdb.HGetAll(ctx, redisDocPrefix+ref.Path()).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return hashToDocument(ref, values), nil
}

func (s *RedisStore) Set(ctx context.Context, ref Ref, fields Fields, opts ...SetOption) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	o := buildSetOptions(opts)
	now := s.opts.clock()
	key := redisDocPrefix + ref.Path()

	txf := func(tx *redis.Tx) error {
		var existing map[string]json.RawMessage
		if o.merge {
			values, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			existing = hashToDocument(ref, values).Data
		}
		next, err := applyFields(existing, fields, now)
		if err != nil {
			return err
		}

		hash := make(map[string]interface{}, len(next)+1)
		for name, raw := range next {
			hash[name] = string(raw)
		}
		hash[redisUpdatedField] = now.UTC().Format(time.RFC3339Nano)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if !o.merge {
				pipe.Del(ctx, key)
			}
			pipe.HSet(ctx, key, hash)
			pipe.SAdd(ctx, redisIndexPrefix+ref.Parent().Path(), ref.ID)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < redisMaxTxRetries; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return err
	}

	_ = s.feed.Publish(ctx, Change{Path: ref.Path(), At: now})
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, ref Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisDocPrefix+ref.Path())
		pipe.SRem(ctx, redisIndexPrefix+ref.Parent().Path(), ref.ID)
		return nil
	})
	if err != nil {
		return err
	}
	_ = s.feed.Publish(ctx, Change{Path: ref.Path(), Deleted: true, At: s.opts.clock()})
	return nil
}

func (s *RedisStore) List(ctx context.Context, coll CollectionRef, limit int) ([]*Document, error) {
	if err := coll.Validate(); err != nil {
		return nil, err
	}
	ids, err := s.rdb.SMembers(ctx, redisIndexPrefix+coll.Path()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	docs := make([]*Document, 0, len(ids))
	for _, id := range ids {
		if limit > 0 && len(docs) >= limit {
			break
		}
		doc, err := s.Get(ctx, coll.Doc(id))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *RedisStore) Watch(ctx context.Context, ref Ref, fn SnapshotFunc) (Unsubscribe, error) {
	return watch(ctx, s.Get, s.feed, ref, fn)
}

func hashToDocument(ref Ref, values map[string]string) *Document {
	doc := &Document{Ref: ref, Data: make(map[string]json.RawMessage, len(values))}
	for name, value := range values {
		if strings.HasPrefix(name, "__") {
			if name == redisUpdatedField {
				doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, value)
			}
			continue
		}
		doc.Data[name] = json.RawMessage(value)
	}
	return doc
}
