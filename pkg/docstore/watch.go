package docstore

import (
	"context"
	"errors"
	"sync"
)

type getFunc func(ctx context.Context, ref Ref) (*Document, error)

// watch delivers an initial snapshot, then a fresh snapshot after every change
// announced on the feed for ref.
func watch(ctx context.Context, get getFunc, feed Feed, ref Ref, fn SnapshotFunc) (Unsubscribe, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(ctx)
	changes, err := feed.Subscribe(wctx, ref.Path())
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		deliver := func() {
			doc, err := get(wctx, ref)
			if wctx.Err() != nil {
				return
			}
			switch {
			case errors.Is(err, ErrNotFound):
				fn(Snapshot{Ref: ref})
			case err != nil:
				fn(Snapshot{Ref: ref, Err: err})
			default:
				fn(Snapshot{Ref: ref, Exists: true, Document: doc})
			}
		}

		deliver()
		for {
			select {
			case <-wctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}
