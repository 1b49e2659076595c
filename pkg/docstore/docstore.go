// Package docstore is a small document-database facade: documents keyed by
// (tenant, user, collection, id), JSON fields, merge writes and change
// notifications. Backends live in memory.go, gorm.go and redis.go.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrInvalidRef = errors.New("invalid document reference")
)

type CollectionRef struct {
	Tenant     string
	UserID     string
	Collection string
}

func (c CollectionRef) Path() string {
	return fmt.Sprintf("artifacts/%s/users/%s/%s", c.Tenant, c.UserID, c.Collection)
}

func (c CollectionRef) Doc(id string) Ref {
	return Ref{Tenant: c.Tenant, UserID: c.UserID, Collection: c.Collection, ID: id}
}

func (c CollectionRef) Validate() error {
	if c.Tenant == "" || c.UserID == "" || c.Collection == "" {
		return ErrInvalidRef
	}
	return nil
}

type Ref struct {
	Tenant     string
	UserID     string
	Collection string
	ID         string
}

func (r Ref) Parent() CollectionRef {
	return CollectionRef{Tenant: r.Tenant, UserID: r.UserID, Collection: r.Collection}
}

func (r Ref) Path() string {
	return r.Parent().Path() + "/" + r.ID
}

func (r Ref) Validate() error {
	if err := r.Parent().Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		return ErrInvalidRef
	}
	return nil
}

// Fields is a set of top-level field writes. Values are JSON-encoded, except
// the ServerTimestamp and ArrayUnion sentinels which the store resolves.
type Fields map[string]any

type Document struct {
	Ref       Ref
	Data      map[string]json.RawMessage
	UpdatedAt time.Time
}

func (d *Document) Has(field string) bool {
	_, ok := d.Data[field]
	return ok
}

// DataTo decodes the whole document into v.
func (d *Document) DataTo(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (d *Document) Field(field string, v any) error {
	raw, ok := d.Data[field]
	if !ok {
		return fmt.Errorf("field %q: %w", field, ErrNotFound)
	}
	return json.Unmarshal(raw, v)
}

// Time reads a field written with ServerTimestamp.
func (d *Document) Time(field string) (time.Time, bool) {
	var t time.Time
	if err := d.Field(field, &t); err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (d *Document) clone() *Document {
	data := make(map[string]json.RawMessage, len(d.Data))
	for k, v := range d.Data {
		data[k] = append(json.RawMessage(nil), v...)
	}
	return &Document{Ref: d.Ref, Data: data, UpdatedAt: d.UpdatedAt}
}

// Snapshot is delivered to watchers. Exists is false once the document is
// missing or deleted.
type Snapshot struct {
	Ref      Ref
	Exists   bool
	Document *Document
	Err      error
}

type SnapshotFunc func(Snapshot)

// Unsubscribe stops a watch. No callback runs after it returns, so it must not
// be called from inside the watch callback.
type Unsubscribe func()

type Store interface {
	Get(ctx context.Context, ref Ref) (*Document, error)
	Set(ctx context.Context, ref Ref, fields Fields, opts ...SetOption) error
	Delete(ctx context.Context, ref Ref) error
	// List returns up to limit documents in store-native order, which callers
	// must not rely on.
	List(ctx context.Context, coll CollectionRef, limit int) ([]*Document, error)
	Watch(ctx context.Context, ref Ref, fn SnapshotFunc) (Unsubscribe, error)
}

type setOptions struct {
	merge bool
}

type SetOption func(*setOptions)

// Merge keeps fields not present in the write.
func Merge() SetOption {
	return func(o *setOptions) {
		o.merge = true
	}
}

func buildSetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type options struct {
	clock func() time.Time
}

type Option func(*options)

// WithClock replaces the server clock used for ServerTimestamp.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
