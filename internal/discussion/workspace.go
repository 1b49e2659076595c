package discussion

import (
	"context"
	"sync"
	"time"

	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/pkg/apperror"
	"discussion-companion-be/pkg/chatbot"
	"discussion-companion-be/pkg/docstore"
)

// request is one outstanding async operation. Its gen must still match the
// workspace generation for its result to be applied.
type request struct {
	gen      uint64
	ctx      context.Context
	cancel   context.CancelFunc
	identity entity.Identity
	topicID  string
	label    string
	// rollbackLen is the history length before an optimistic user message,
	// or -1 when the request appended nothing.
	rollbackLen int
}

// Workspace is one user's discussion state. It is owned by a single caller
// and passed to every operation; all fields are guarded by mu.
//
// Unsubscribe functions are always called after mu is released, since they
// wait for a running watch callback that itself takes mu.
type Workspace struct {
	mu sync.Mutex

	identity     *entity.Identity
	state        State
	loading      bool
	busy         bool
	localEditing bool
	session      Session
	recent       []entity.RecentDiscussion

	generation  uint64
	current     *request
	unsubscribe docstore.Unsubscribe

	renderer Renderer
	version  uint64
}

func NewWorkspace(renderer Renderer) *Workspace {
	return &Workspace{
		state:    StateUnauthenticated,
		renderer: renderer,
	}
}

func (w *Workspace) SetRenderer(renderer Renderer) {
	w.mu.Lock()
	w.renderer = renderer
	w.mu.Unlock()
}

func (w *Workspace) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

func (w *Workspace) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workspace) Session() Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session.clone()
}

func (w *Workspace) Recent() []entity.RecentDiscussion {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]entity.RecentDiscussion(nil), w.recent...)
}

func (w *Workspace) Identity() (entity.Identity, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.identity == nil {
		return entity.Identity{}, false
	}
	return *w.identity, true
}

func (w *Workspace) LocalEditing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.localEditing
}

// Generation changes every time the open discussion is left or replaced.
func (w *Workspace) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

func (w *Workspace) viewLocked() View {
	w.version++
	return View{
		Version:      w.version,
		State:        w.state,
		Loading:      w.loading,
		Busy:         w.busy,
		LocalEditing: w.localEditing,
		Session:      w.session.clone(),
		Recent:       append([]entity.RecentDiscussion(nil), w.recent...),
	}
}

func (w *Workspace) render() {
	w.mu.Lock()
	renderer := w.renderer
	if renderer == nil {
		w.mu.Unlock()
		return
	}
	view := w.viewLocked()
	w.mu.Unlock()
	renderer(view)
}

// invalidateLocked abandons the open discussion: the generation moves on, the
// outstanding request is cancelled and its optimistic message removed. The
// returned unsubscribe must be called once mu is released.
func (w *Workspace) invalidateLocked() docstore.Unsubscribe {
	w.generation++
	if w.current != nil {
		w.current.cancel()
		if w.current.rollbackLen >= 0 && w.current.rollbackLen <= len(w.session.History) {
			w.session.History = w.session.History[:w.current.rollbackLen]
		}
		w.current = nil
	}
	w.loading = false
	w.busy = false
	w.localEditing = false
	unsub := w.unsubscribe
	w.unsubscribe = nil
	return unsub
}

func (w *Workspace) newRequestLocked(ctx context.Context, rollbackLen int) *request {
	rctx, cancel := context.WithCancel(ctx)
	req := &request{
		gen:         w.generation,
		ctx:         rctx,
		cancel:      cancel,
		topicID:     w.session.TopicId,
		label:       w.session.TopicLabel,
		rollbackLen: rollbackLen,
	}
	if w.identity != nil {
		req.identity = *w.identity
	}
	w.current = req
	w.loading = true
	return req
}

// finishLocked releases req if it is still the outstanding request.
func (w *Workspace) finishLocked(req *request) bool {
	req.cancel()
	if w.current != req {
		return false
	}
	w.current = nil
	w.loading = false
	return true
}

func (w *Workspace) signIn(identity entity.Identity) docstore.Unsubscribe {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.identity != nil && *w.identity == identity && w.state != StateUnauthenticated {
		return nil
	}
	unsub := w.invalidateLocked()
	w.identity = &identity
	w.state = StateTopicSelection
	w.session = Session{}
	w.recent = nil
	return unsub
}

func (w *Workspace) signOut() docstore.Unsubscribe {
	w.mu.Lock()
	defer w.mu.Unlock()
	unsub := w.invalidateLocked()
	w.identity = nil
	w.state = StateUnauthenticated
	w.session = Session{}
	w.recent = nil
	return unsub
}

func (w *Workspace) back() docstore.Unsubscribe {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateUnauthenticated {
		return nil
	}
	unsub := w.invalidateLocked()
	w.state = StateTopicSelection
	return unsub
}

func (w *Workspace) setLocalEditing(active bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.localEditing == active {
		return false
	}
	w.localEditing = active
	return true
}

// busySignal reports the completion client's busy flag, ignoring calls made
// for a request that is no longer outstanding.
func (w *Workspace) busySignal(req *request) chatbot.BusySignal {
	return func(active bool) {
		w.mu.Lock()
		if w.current != req {
			w.mu.Unlock()
			return
		}
		w.busy = active
		w.mu.Unlock()
		w.render()
	}
}

func (w *Workspace) beginOpen(ctx context.Context, topicID, label string) (*request, docstore.Unsubscribe, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.identity == nil {
		return nil, nil, apperror.ErrUnauthenticated
	}
	unsub := w.invalidateLocked()
	w.state = StateTopicSelection
	w.session = Session{TopicId: topicID, TopicLabel: label}
	return w.newRequestLocked(ctx, -1), unsub, nil
}

// apply mutates the session on behalf of req, unless req is stale.
func (w *Workspace) apply(req *request, fn func(s *Session)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if req.gen != w.generation {
		return apperror.ErrStaleResult
	}
	fn(&w.session)
	return nil
}

func (w *Workspace) completeOpen(req *request) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.finishLocked(req) || req.gen != w.generation {
		return false
	}
	w.state = StateActiveDiscussion
	return true
}

// failOpen returns to topic selection when req is still current.
func (w *Workspace) failOpen(req *request) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.finishLocked(req) || req.gen != w.generation {
		return false
	}
	w.generation++
	w.busy = false
	w.state = StateTopicSelection
	w.session = Session{}
	return true
}

func (w *Workspace) isStale(req *request) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return req.gen != w.generation
}

func (w *Workspace) activeLocked() error {
	if w.identity == nil {
		return apperror.ErrUnauthenticated
	}
	if w.state != StateActiveDiscussion || w.session.TopicId == "" {
		return apperror.ErrNoActiveSession
	}
	return nil
}

// beginSend appends the optimistic user message and returns the history
// that preceded it.
func (w *Workspace) beginSend(ctx context.Context, text string) (*request, []entity.Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.activeLocked(); err != nil {
		return nil, nil, err
	}
	if w.current != nil {
		return nil, nil, apperror.ErrRequestInFlight
	}
	history := append([]entity.Message(nil), w.session.History...)
	req := w.newRequestLocked(ctx, len(w.session.History))
	w.session.History = append(w.session.History, entity.Message{Role: entity.MessageRoleUser, Text: text})
	return req, history, nil
}

func (w *Workspace) beginSuggestions(ctx context.Context) (*request, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.activeLocked(); err != nil {
		return nil, false, err
	}
	if w.current != nil {
		return nil, false, apperror.ErrRequestInFlight
	}
	return w.newRequestLocked(ctx, -1), w.session.SuggestionsGenerated, nil
}

// rollback removes req's optimistic message after a failure. It reports false
// when req was already abandoned.
func (w *Workspace) rollback(req *request) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.finishLocked(req) || req.gen != w.generation {
		return false
	}
	w.busy = false
	if req.rollbackLen >= 0 && req.rollbackLen <= len(w.session.History) {
		w.session.History = w.session.History[:req.rollbackLen]
	}
	return true
}

func (w *Workspace) commit(req *request, fn func(s *Session)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.finishLocked(req) || req.gen != w.generation {
		return false
	}
	w.busy = false
	fn(&w.session)
	return true
}

type persistTarget struct {
	identity entity.Identity
	session  Session
}

// persistSnapshot captures what to write for generation gen. A non-nil notes
// replaces the local notes first.
func (w *Workspace) persistSnapshot(gen uint64, notes *string) (persistTarget, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		return persistTarget{}, apperror.ErrStaleResult
	}
	if w.identity == nil {
		return persistTarget{}, apperror.ErrUnauthenticated
	}
	if w.session.TopicId == "" {
		return persistTarget{}, apperror.ErrNoActiveSession
	}
	if notes != nil {
		w.session.Notes = *notes
	}
	return persistTarget{identity: *w.identity, session: w.session.clone()}, nil
}

func (w *Workspace) markPersisted(gen uint64, topicID string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen == w.generation && w.session.TopicId == topicID {
		w.session.LastUpdated = at
	}
}

func (w *Workspace) liveTarget() (entity.Identity, string, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.activeLocked(); err != nil {
		return entity.Identity{}, "", 0, err
	}
	return *w.identity, w.session.TopicId, w.generation, nil
}

// swapSubscription installs unsub as the live subscription for gen. The
// previous one is returned for the caller to release.
func (w *Workspace) swapSubscription(gen uint64, unsub docstore.Unsubscribe) (docstore.Unsubscribe, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		return nil, false
	}
	prev := w.unsubscribe
	w.unsubscribe = unsub
	return prev, true
}

// applyRemoteNotes takes a remote notes value unless the user is editing.
func (w *Workspace) applyRemoteNotes(gen uint64, notes string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation || w.localEditing || w.session.Notes == notes {
		return false
	}
	w.session.Notes = notes
	return true
}

func (w *Workspace) deleteTarget() (entity.Identity, Session, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.activeLocked(); err != nil {
		return entity.Identity{}, Session{}, 0, err
	}
	return *w.identity, w.session.clone(), w.generation, nil
}

// detach tears the open discussion away from its subscription and any
// outstanding request before a delete. It returns the new generation.
func (w *Workspace) detach(gen uint64) (docstore.Unsubscribe, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		return nil, 0, apperror.ErrStaleResult
	}
	unsub := w.invalidateLocked()
	return unsub, w.generation, nil
}

// resetAfterDelete clears the session when nothing replaced it meanwhile.
func (w *Workspace) resetAfterDelete(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		return false
	}
	w.session = Session{}
	if w.state == StateActiveDiscussion {
		w.state = StateTopicSelection
	}
	return true
}

func (w *Workspace) setRecent(userID string, recent []entity.RecentDiscussion) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.identity == nil || w.identity.UserId != userID {
		return false
	}
	w.recent = recent
	return true
}
