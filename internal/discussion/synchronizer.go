package discussion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/mapper"
	"discussion-companion-be/internal/model"
	"discussion-companion-be/internal/pkg/apperror"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/pkg/chatbot"
	"discussion-companion-be/pkg/docstore"
)

const syncModule = "DiscussionSync"

// Synchronizer keeps a Workspace's session consistent with the store.
type Synchronizer struct {
	store     docstore.Store
	generator chatbot.Generator
	tenant    string
	mapper    *mapper.DiscussionMapper
	logger    logger.ILogger
	clock     func() time.Time
}

func NewSynchronizer(store docstore.Store, generator chatbot.Generator, tenant string, log logger.ILogger) *Synchronizer {
	return &Synchronizer{
		store:     store,
		generator: generator,
		tenant:    tenant,
		mapper:    mapper.NewDiscussionMapper(),
		logger:    log,
		clock:     time.Now,
	}
}

func (s *Synchronizer) collection(userID string) docstore.CollectionRef {
	return docstore.CollectionRef{Tenant: s.tenant, UserID: userID, Collection: model.DiscussionCollection}
}

// LoadOrCreate opens a discussion. An existing document with a chat history
// is hydrated; otherwise a greeting seeds a new one, which is saved at once.
// It reports whether the discussion was created. Any failure other than being
// overtaken by another navigation is a *apperror.SessionLoadError and leaves
// the workspace in topic selection.
func (s *Synchronizer) LoadOrCreate(ctx context.Context, ws *Workspace, topicLabel, explicitID string) (bool, error) {
	topicLabel = strings.TrimSpace(topicLabel)
	topicID := strings.TrimSpace(explicitID)
	if topicID == "" {
		topicID = TopicID(topicLabel)
	}
	labelGiven := topicLabel != ""
	if !labelGiven {
		topicLabel = topicID
	}
	if topicID == "" {
		return false, &apperror.SessionLoadError{TopicLabel: topicLabel, Err: apperror.ErrInvalidInput}
	}

	req, unsub, err := ws.beginOpen(ctx, topicID, topicLabel)
	if err != nil {
		return false, err
	}
	if unsub != nil {
		unsub()
	}
	ws.render()

	created, err := s.load(ws, req, labelGiven)
	if err != nil {
		if ws.isStale(req) {
			return false, apperror.ErrStaleResult
		}
		s.logger.Warn(syncModule, "Failed to open discussion", map[string]interface{}{
			"topic_id": topicID,
			"error":    err.Error(),
		})
		if ws.failOpen(req) {
			ws.render()
		}
		return false, &apperror.SessionLoadError{TopicLabel: topicLabel, Err: err}
	}

	if !ws.completeOpen(req) {
		return false, apperror.ErrStaleResult
	}
	ws.render()

	if err := s.SubscribeLive(ctx, ws); err != nil && !errors.Is(err, apperror.ErrStaleResult) {
		s.logger.Warn(syncModule, "Live updates unavailable", map[string]interface{}{
			"topic_id": topicID,
			"error":    err.Error(),
		})
	}
	return created, nil
}

// load hydrates or creates the session for req. Without a caller-supplied
// label, a stored discussion keeps the label it was saved under.
func (s *Synchronizer) load(ws *Workspace, req *request, labelGiven bool) (bool, error) {
	ref := s.collection(req.identity.UserId).Doc(req.topicID)

	doc, err := s.store.Get(req.ctx, ref)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return false, fmt.Errorf("read discussion: %w", err)
	}
	if err == nil && doc.Has(model.FieldChatHistory) {
		stored, err := s.mapper.DocumentToEntity(doc)
		if err != nil {
			return false, fmt.Errorf("decode discussion: %w", err)
		}
		return false, ws.apply(req, func(sess *Session) {
			if !labelGiven {
				sess.TopicLabel = storedLabel(stored, req.topicID)
			}
			sess.History = stored.ChatHistory
			sess.Notes = stored.NoteContent
			sess.SuggestionsGenerated = stored.HasSuggestions
			sess.LastUpdated = stored.LastUpdated
		})
	}

	greeting, err := s.generator.Generate(req.ctx, chatbot.Request{
		Prompt:            greetingPrompt(req.label),
		SystemInstruction: greetingInstruction,
		Busy:              ws.busySignal(req),
	})
	if err != nil {
		return false, err
	}
	err = ws.apply(req, func(sess *Session) {
		sess.History = []entity.Message{{Role: entity.MessageRoleModel, Text: greeting}}
		sess.Notes = ""
		sess.SuggestionsGenerated = false
	})
	if err != nil {
		return false, err
	}

	empty := ""
	if err := s.persist(req.ctx, ws, req.gen, &empty); err != nil {
		return false, err
	}
	return true, nil
}

func storedLabel(stored *entity.DiscussionDocument, topicID string) string {
	switch {
	case strings.TrimSpace(stored.Area) != "":
		return stored.Area
	case strings.TrimSpace(stored.Genre) != "":
		return stored.Genre
	default:
		return topicID
	}
}

// Persist merge-writes the whole session with notes as the note content.
func (s *Synchronizer) Persist(ctx context.Context, ws *Workspace, notes string) error {
	return s.persist(ctx, ws, ws.Generation(), &notes)
}

func (s *Synchronizer) persist(ctx context.Context, ws *Workspace, gen uint64, notes *string) error {
	target, err := ws.persistSnapshot(gen, notes)
	if err != nil {
		return err
	}
	sess := target.session
	ref := s.collection(target.identity.UserId).Doc(sess.TopicId)

	fields := docstore.Fields{
		model.FieldNoteContent:    sess.Notes,
		model.FieldChatHistory:    s.mapper.MessagesToTurns(sess.History),
		model.FieldLastUpdated:    docstore.ServerTimestamp,
		model.FieldArea:           sess.TopicLabel,
		model.FieldGenre:          sess.TopicLabel,
		model.FieldHasSuggestions: sess.SuggestionsGenerated,
	}
	if err := s.store.Set(ctx, ref, fields, docstore.Merge()); err != nil {
		s.logger.Error(syncModule, "Failed to save discussion", map[string]interface{}{
			"topic_id": sess.TopicId,
			"error":    err.Error(),
		})
		return &apperror.PersistError{TopicID: sess.TopicId, Err: err}
	}

	ws.markPersisted(gen, sess.TopicId, s.clock())
	ws.render()

	if err := s.RefreshRecentIndex(ctx, ws); err != nil {
		s.logger.Warn(syncModule, "Failed to refresh recent discussions", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return nil
}

// SubscribeLive replaces the workspace's live subscription with one on the
// open discussion's document. The watch outlives ctx and holds no reference
// to it; it ends only through its unsubscribe.
func (s *Synchronizer) SubscribeLive(_ context.Context, ws *Workspace) error {
	identity, topicID, gen, err := ws.liveTarget()
	if err != nil {
		return err
	}
	ref := s.collection(identity.UserId).Doc(topicID)

	unsub, err := s.store.Watch(context.Background(), ref, func(snap docstore.Snapshot) {
		s.onRemoteChange(ws, gen, snap)
	})
	if err != nil {
		return fmt.Errorf("watch discussion: %w", err)
	}

	prev, ok := ws.swapSubscription(gen, unsub)
	if prev != nil {
		prev()
	}
	if !ok {
		unsub()
		return apperror.ErrStaleResult
	}
	return nil
}

func (s *Synchronizer) onRemoteChange(ws *Workspace, gen uint64, snap docstore.Snapshot) {
	if snap.Err != nil {
		s.logger.Warn(syncModule, "Error listening to notes", map[string]interface{}{
			"path":  snap.Ref.Path(),
			"error": snap.Err.Error(),
		})
		return
	}
	notes := ""
	if snap.Exists {
		_ = snap.Document.Field(model.FieldNoteContent, &notes)
	}
	if ws.applyRemoteNotes(gen, notes) {
		ws.render()
	}
}

// Delete asks confirmer first; a decline changes nothing and reports false.
func (s *Synchronizer) Delete(ctx context.Context, ws *Workspace, confirmer Confirmer) (bool, error) {
	identity, sess, gen, err := ws.deleteTarget()
	if err != nil {
		return false, err
	}

	confirmed, err := confirmer.Confirm(ctx, DeletePrompt(sess.TopicLabel))
	if err != nil {
		return false, err
	}
	if !confirmed {
		return false, nil
	}

	unsub, gen, err := ws.detach(gen)
	if err != nil {
		return false, err
	}
	if unsub != nil {
		unsub()
	}

	ref := s.collection(identity.UserId).Doc(sess.TopicId)
	if err := s.store.Delete(ctx, ref); err != nil {
		s.logger.Error(syncModule, "Failed to delete discussion", map[string]interface{}{
			"topic_id": sess.TopicId,
			"error":    err.Error(),
		})
		if subErr := s.SubscribeLive(ctx, ws); subErr != nil {
			s.logger.Warn(syncModule, "Failed to restore live updates", map[string]interface{}{
				"error": subErr.Error(),
			})
		}
		return false, fmt.Errorf("delete discussion %q: %w", sess.TopicId, err)
	}

	if ws.resetAfterDelete(gen) {
		ws.render()
	}
	if err := s.RefreshRecentIndex(ctx, ws); err != nil {
		s.logger.Warn(syncModule, "Failed to refresh recent discussions", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return true, nil
}

// RefreshRecentIndex rebuilds the recent list from up to RecentFetchLimit
// documents, newest first, since the store's order is not meaningful.
func (s *Synchronizer) RefreshRecentIndex(ctx context.Context, ws *Workspace) error {
	if s.store == nil {
		return nil
	}
	identity, ok := ws.Identity()
	if !ok {
		return nil
	}

	docs, err := s.store.List(ctx, s.collection(identity.UserId), RecentFetchLimit)
	if err != nil {
		return fmt.Errorf("list discussions: %w", err)
	}

	recent := make([]entity.RecentDiscussion, 0, len(docs))
	for _, doc := range docs {
		recent = append(recent, s.mapper.DocumentToRecent(doc))
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].LastUpdated.After(recent[j].LastUpdated)
	})
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}

	if ws.setRecent(identity.UserId, recent) {
		ws.render()
	}
	return nil
}
