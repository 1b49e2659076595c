package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps documents in process. It backs the terminal client's
// offline mode and the package tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
	feed Feed
	opts options
}

func NewMemoryStore(feed Feed, opts ...Option) *MemoryStore {
	if feed == nil {
		feed = NewLocalFeed(nil)
	}
	return &MemoryStore{
		docs: make(map[string]*Document),
		feed: feed,
		opts: buildOptions(opts),
	}
}

func (s *MemoryStore) Get(_ context.Context, ref Ref) (*Document, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[ref.Path()]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.clone(), nil
}

func (s *MemoryStore) Set(ctx context.Context, ref Ref, fields Fields, opts ...SetOption) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	o := buildSetOptions(opts)
	now := s.opts.clock()

	s.mu.Lock()
	current, ok := s.docs[ref.Path()]
	var existing map[string]json.RawMessage
	if ok && o.merge {
		existing = current.Data
	}
	next, err := applyFields(existing, fields, now)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs[ref.Path()] = &Document{Ref: ref, Data: next, UpdatedAt: now}
	s.mu.Unlock()

	// Feed delivery is best effort; the write already happened.
	_ = s.feed.Publish(ctx, Change{Path: ref.Path(), At: now})
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.docs, ref.Path())
	s.mu.Unlock()

	_ = s.feed.Publish(ctx, Change{Path: ref.Path(), Deleted: true, At: s.opts.clock()})
	return nil
}

func (s *MemoryStore) List(_ context.Context, coll CollectionRef, limit int) ([]*Document, error) {
	if err := coll.Validate(); err != nil {
		return nil, err
	}
	prefix := coll.Path() + "/"

	s.mu.RLock()
	docs := make([]*Document, 0)
	for path, doc := range s.docs {
		if strings.HasPrefix(path, prefix) && !strings.Contains(path[len(prefix):], "/") {
			docs = append(docs, doc.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].Ref.ID < docs[j].Ref.ID })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *MemoryStore) Watch(ctx context.Context, ref Ref, fn SnapshotFunc) (Unsubscribe, error) {
	return watch(ctx, s.Get, s.feed, ref, fn)
}

func (s *MemoryStore) Close() error {
	return s.feed.Close()
}
