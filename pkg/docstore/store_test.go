package docstore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newMemoryStore(t *testing.T) Store {
	s := NewMemoryStore(nil, WithClock(fixedClock))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSQLiteStore(t *testing.T) Store {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := NewGormStore(db, nil, WithClock(fixedClock))
	require.NoError(t, s.AutoMigrate())
	return s
}

func newRedisStore(t *testing.T) Store {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping redis store test: REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, nil, WithClock(fixedClock))
}

func testCollection() CollectionRef {
	return CollectionRef{Tenant: "test-app", UserID: "u-" + uuid.NewString(), Collection: "notes_collection"}
}

func TestStores(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"memory": newMemoryStore,
		"sqlite": newSQLiteStore,
		"redis":  newRedisStore,
	}
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			runStoreSuite(t, newStore)
		})
	}
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, testCollection().Doc("nope"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid ref", func(t *testing.T) {
		s := newStore(t)
		err := s.Set(ctx, Ref{Tenant: "a", UserID: "b", Collection: "c"}, Fields{"x": 1})
		assert.ErrorIs(t, err, ErrInvalidRef)
	})

	t.Run("set replaces unless merging", func(t *testing.T) {
		s := newStore(t)
		ref := testCollection().Doc("d1")

		require.NoError(t, s.Set(ctx, ref, Fields{"area": "Space", "genre": "Science"}))
		require.NoError(t, s.Set(ctx, ref, Fields{"noteContent": "hi"}, Merge()))

		doc, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.True(t, doc.Has("area"))
		assert.True(t, doc.Has("noteContent"))

		require.NoError(t, s.Set(ctx, ref, Fields{"noteContent": "only"}))
		doc, err = s.Get(ctx, ref)
		require.NoError(t, err)
		assert.False(t, doc.Has("area"))

		var note string
		require.NoError(t, doc.Field("noteContent", &note))
		assert.Equal(t, "only", note)
	})

	t.Run("server timestamp uses store clock", func(t *testing.T) {
		s := newStore(t)
		ref := testCollection().Doc("ts")
		require.NoError(t, s.Set(ctx, ref, Fields{"lastUpdated": ServerTimestamp}))

		doc, err := s.Get(ctx, ref)
		require.NoError(t, err)
		got, ok := doc.Time("lastUpdated")
		require.True(t, ok)
		assert.True(t, got.Equal(fixedNow))
	})

	t.Run("array union skips equal elements", func(t *testing.T) {
		s := newStore(t)
		ref := testCollection().Doc("topics")
		require.NoError(t, s.Set(ctx, ref, Fields{"topics": ArrayUnion("a", "b")}, Merge()))
		require.NoError(t, s.Set(ctx, ref, Fields{"topics": ArrayUnion("b", "c")}, Merge()))

		doc, err := s.Get(ctx, ref)
		require.NoError(t, err)
		var topics []string
		require.NoError(t, doc.Field("topics", &topics))
		assert.Equal(t, []string{"a", "b", "c"}, topics)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ref := testCollection().Doc("gone")
		require.NoError(t, s.Set(ctx, ref, Fields{"x": 1}))
		require.NoError(t, s.Delete(ctx, ref))
		_, err := s.Get(ctx, ref)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list is scoped and limited", func(t *testing.T) {
		s := newStore(t)
		coll := testCollection()
		other := CollectionRef{Tenant: coll.Tenant, UserID: coll.UserID, Collection: "chats"}
		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, s.Set(ctx, coll.Doc(id), Fields{"id": id}))
		}
		require.NoError(t, s.Set(ctx, other.Doc("z"), Fields{"id": "z"}))

		docs, err := s.List(ctx, coll, 0)
		require.NoError(t, err)
		assert.Len(t, docs, 3)

		docs, err = s.List(ctx, coll, 2)
		require.NoError(t, err)
		assert.Len(t, docs, 2)
		for _, d := range docs {
			assert.Equal(t, coll.Collection, d.Ref.Collection)
		}
	})

	t.Run("watch follows writes and deletes", func(t *testing.T) {
		s := newStore(t)
		ref := testCollection().Doc("watched")

		rec := &snapshotRecorder{}
		unsubscribe, err := s.Watch(ctx, ref, rec.record)
		require.NoError(t, err)
		defer unsubscribe()

		require.Eventually(t, func() bool { return rec.len() >= 1 }, 2*time.Second, 10*time.Millisecond)
		assert.False(t, rec.at(0).Exists)

		require.NoError(t, s.Set(ctx, ref, Fields{"noteContent": "remote"}))
		require.Eventually(t, func() bool { return rec.last().Exists }, 2*time.Second, 10*time.Millisecond)

		var note string
		require.NoError(t, rec.last().Document.Field("noteContent", &note))
		assert.Equal(t, "remote", note)

		require.NoError(t, s.Delete(ctx, ref))
		require.Eventually(t, func() bool { return !rec.last().Exists }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("no callbacks after unsubscribe", func(t *testing.T) {
		s := newStore(t)
		ref := testCollection().Doc("quiet")

		rec := &snapshotRecorder{}
		unsubscribe, err := s.Watch(ctx, ref, rec.record)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return rec.len() >= 1 }, 2*time.Second, 10*time.Millisecond)

		unsubscribe()
		unsubscribe()
		before := rec.len()
		require.NoError(t, s.Set(ctx, ref, Fields{"x": 1}))
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, before, rec.len())
	})
}

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *snapshotRecorder) record(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *snapshotRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *snapshotRecorder) at(i int) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[i]
}

func (r *snapshotRecorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}
