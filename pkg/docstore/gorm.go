package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRecord is one stored document row.
type DocumentRecord struct {
	Path       string         `gorm:"primaryKey;size:512"`
	Tenant     string         `gorm:"size:128;index:idx_documents_collection,priority:1"`
	UserId     string         `gorm:"size:128;index:idx_documents_collection,priority:2"`
	Collection string         `gorm:"size:128;index:idx_documents_collection,priority:3"`
	DocId      string         `gorm:"size:128"`
	Data       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (DocumentRecord) TableName() string {
	return "documents"
}

type GormStore struct {
	db   *gorm.DB
	feed Feed
	opts options
}

func NewGormStore(db *gorm.DB, feed Feed, opts ...Option) *GormStore {
	if feed == nil {
		feed = NewLocalFeed(nil)
	}
	return &GormStore{db: db, feed: feed, opts: buildOptions(opts)}
}

// AutoMigrate creates the documents table.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&DocumentRecord{})
}

func (s *GormStore) Get(ctx context.Context, ref Ref) (*Document, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	var record DocumentRecord
	err := s.db.WithContext(ctx).Where("path = ?", ref.Path()).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return recordToDocument(ref, &record)
}

func (s *GormStore) Set(ctx context.Context, ref Ref, fields Fields, opts ...SetOption) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	o := buildSetOptions(opts)
	now := s.opts.clock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("path = ?", ref.Path())
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var record DocumentRecord
		err := query.Take(&record).Error
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var existing map[string]json.RawMessage
		if exists && o.merge {
			if err := json.Unmarshal(record.Data, &existing); err != nil {
				return err
			}
		}
		next, err := applyFields(existing, fields, now)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}

		if !exists {
			record = DocumentRecord{
				Path:       ref.Path(),
				Tenant:     ref.Tenant,
				UserId:     ref.UserID,
				Collection: ref.Collection,
				DocId:      ref.ID,
				CreatedAt:  now,
			}
			record.Data = datatypes.JSON(data)
			record.UpdatedAt = now
			return tx.Create(&record).Error
		}
		record.Data = datatypes.JSON(data)
		record.UpdatedAt = now
		return tx.Save(&record).Error
	})
	if err != nil {
		return err
	}

	_ = s.feed.Publish(ctx, Change{Path: ref.Path(), At: now})
	return nil
}

func (s *GormStore) Delete(ctx context.Context, ref Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("path = ?", ref.Path()).Delete(&DocumentRecord{}).Error; err != nil {
		return err
	}
	_ = s.feed.Publish(ctx, Change{Path: ref.Path(), Deleted: true, At: s.opts.clock()})
	return nil
}

func (s *GormStore) List(ctx context.Context, coll CollectionRef, limit int) ([]*Document, error) {
	if err := coll.Validate(); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).
		Where("tenant = ? AND user_id = ? AND collection = ?", coll.Tenant, coll.UserID, coll.Collection).
		Order("doc_id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []DocumentRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(records))
	for i := range records {
		doc, err := recordToDocument(coll.Doc(records[i].DocId), &records[i])
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *GormStore) Watch(ctx context.Context, ref Ref, fn SnapshotFunc) (Unsubscribe, error) {
	return watch(ctx, s.Get, s.feed, ref, fn)
}

func recordToDocument(ref Ref, record *DocumentRecord) (*Document, error) {
	data := map[string]json.RawMessage{}
	if len(record.Data) > 0 {
		if err := json.Unmarshal(record.Data, &data); err != nil {
			return nil, err
		}
	}
	return &Document{Ref: ref, Data: data, UpdatedAt: record.UpdatedAt}, nil
}
