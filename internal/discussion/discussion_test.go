package discussion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/model"
	"discussion-companion-be/internal/pkg/apperror"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/pkg/chatbot"
	"discussion-companion-be/pkg/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	text string
	err  error
}

type fakeGenerator struct {
	mu        sync.Mutex
	requests  []chatbot.Request
	replies   []reply
	block     chan struct{}
	ignoreCtx bool
}

func (f *fakeGenerator) Generate(ctx context.Context, req chatbot.Request) (string, error) {
	if req.Busy != nil {
		req.Busy(true)
		defer req.Busy(false)
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	r := reply{text: fmt.Sprintf("reply %d", len(f.requests))}
	if len(f.replies) > 0 {
		r = f.replies[0]
		f.replies = f.replies[1:]
	}
	block, ignoreCtx := f.block, f.ignoreCtx
	f.mu.Unlock()

	if block != nil {
		if ignoreCtx {
			<-block
		} else {
			select {
			case <-block:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return r.text, r.err
}

func (f *fakeGenerator) queue(replies ...reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

func (f *fakeGenerator) calls() []chatbot.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatbot.Request(nil), f.requests...)
}

func (f *fakeGenerator) setBlock(block chan struct{}, ignoreCtx bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = block
	f.ignoreCtx = ignoreCtx
}

// countingStore tracks live watches and can fail writes.
type countingStore struct {
	docstore.Store
	mu        sync.Mutex
	active    int
	failSet   error
	watchCtxs []context.Context
}

func (c *countingStore) Watch(ctx context.Context, ref docstore.Ref, fn docstore.SnapshotFunc) (docstore.Unsubscribe, error) {
	c.mu.Lock()
	c.watchCtxs = append(c.watchCtxs, ctx)
	c.mu.Unlock()
	unsub, err := c.Store.Watch(ctx, ref, fn)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.active++
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			c.mu.Lock()
			c.active--
			c.mu.Unlock()
		})
	}, nil
}

func (c *countingStore) Set(ctx context.Context, ref docstore.Ref, fields docstore.Fields, opts ...docstore.SetOption) error {
	c.mu.Lock()
	err := c.failSet
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Store.Set(ctx, ref, fields, opts...)
}

func (c *countingStore) activeWatches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *countingStore) setFailure(err error) {
	c.mu.Lock()
	c.failSet = err
	c.mu.Unlock()
}

type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	ctx     context.Context
	store   *countingStore
	gen     *fakeGenerator
	machine *Machine
	ws      *Workspace
	views   *viewRecorder
}

const testTenant = "test-app"
const testUser = "user-1"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &tickClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	mem := docstore.NewMemoryStore(nil, docstore.WithClock(clock.Now))
	t.Cleanup(func() { _ = mem.Close() })

	store := &countingStore{Store: mem}
	gen := &fakeGenerator{}
	nop := logger.NewNopLogger()
	machine := NewMachine(NewSynchronizer(store, gen, testTenant, nop), gen, nop)

	views := &viewRecorder{}
	ws := NewWorkspace(views.record)
	ctx := context.Background()
	require.NoError(t, machine.SignIn(ctx, ws, entity.Identity{UserId: testUser, Email: "a@b.c"}))
	t.Cleanup(func() { machine.SignOut(ws) })

	return &fixture{ctx: ctx, store: store, gen: gen, machine: machine, ws: ws, views: views}
}

func (f *fixture) ref(topicID string) docstore.Ref {
	return docstore.CollectionRef{Tenant: testTenant, UserID: testUser, Collection: model.DiscussionCollection}.Doc(topicID)
}

func (f *fixture) storedHistory(t *testing.T, topicID string) []model.StoredTurn {
	t.Helper()
	doc, err := f.store.Get(f.ctx, f.ref(topicID))
	require.NoError(t, err)
	var turns []model.StoredTurn
	require.NoError(t, doc.Field(model.FieldChatHistory, &turns))
	return turns
}

func (f *fixture) open(t *testing.T, label string) {
	t.Helper()
	_, err := f.machine.Open(f.ctx, f.ws, label, "")
	require.NoError(t, err)
	require.Equal(t, StateActiveDiscussion, f.ws.State())
}

type viewRecorder struct {
	mu    sync.Mutex
	views []View
}

func (r *viewRecorder) record(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *viewRecorder) sawBusy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.views {
		if v.Busy {
			return true
		}
	}
	return false
}

func TestTopicID(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{label: "Space Exploration!", want: "space_exploration_"},
		{label: "Greek Mythology", want: "greek_mythology"},
		{label: "1990s Music", want: "1990s_music"},
		{label: "Café", want: "caf_"},
		{label: "snake_case stays", want: "snake_case_stays"},
		{label: strings.Repeat("ab", 40), want: strings.Repeat("ab", 25)},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got := TopicID(tt.label)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, TopicID(tt.label))
			assert.LessOrEqual(t, len([]rune(got)), 50)
		})
	}
}

func TestOpenCreatesDiscussionWithGreeting(t *testing.T) {
	f := newFixture(t)
	f.gen.queue(reply{text: "Welcome to space!"})

	created, err := f.machine.Open(f.ctx, f.ws, "Space Exploration!", "")
	require.NoError(t, err)
	assert.True(t, created)

	sess := f.ws.Session()
	assert.Equal(t, "space_exploration_", sess.TopicId)
	assert.Equal(t, []entity.Message{{Role: entity.MessageRoleModel, Text: "Welcome to space!"}}, sess.History)
	assert.Equal(t, StateActiveDiscussion, f.ws.State())

	calls := f.gen.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, greetingInstruction, calls[0].SystemInstruction)
	assert.Equal(t, `I want to chat about the genre: "Space Exploration!". Give me a short welcome message.`, calls[0].Prompt)
	assert.Empty(t, calls[0].History)

	doc, err := f.store.Get(f.ctx, f.ref("space_exploration_"))
	require.NoError(t, err)
	var stored model.Discussion
	require.NoError(t, doc.DataTo(&stored))
	assert.Equal(t, "Space Exploration!", stored.Area)
	assert.Equal(t, "Space Exploration!", stored.Genre)
	assert.Equal(t, "", stored.NoteContent)
	assert.False(t, stored.HasSuggestions)
	require.NotNil(t, stored.LastUpdated)
	require.Len(t, stored.ChatHistory, 1)
	assert.Equal(t, "model", stored.ChatHistory[0].Role)

	recent := f.ws.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "Space Exploration!", recent[0].TopicLabel)
}

func TestOpenHydratesExistingDiscussion(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(f.ctx, f.ref("greek_mythology"), docstore.Fields{
		model.FieldNoteContent: "Zeus notes",
		model.FieldChatHistory: []model.StoredTurn{
			{Role: "model", Parts: []model.StoredPart{{Text: "Hello"}}},
			{Role: "user", Parts: []model.StoredPart{{Text: "Tell me about Zeus"}}},
		},
		model.FieldHasSuggestions: true,
		model.FieldLastUpdated:    docstore.ServerTimestamp,
	}))

	created, err := f.machine.Open(f.ctx, f.ws, "Greek Mythology", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, f.gen.calls())

	sess := f.ws.Session()
	assert.Equal(t, "Zeus notes", sess.Notes)
	assert.True(t, sess.SuggestionsGenerated)
	assert.Equal(t, []entity.Message{
		{Role: entity.MessageRoleModel, Text: "Hello"},
		{Role: entity.MessageRoleUser, Text: "Tell me about Zeus"},
	}, sess.History)
}

func TestOpenWithExplicitIDUsesItVerbatim(t *testing.T) {
	f := newFixture(t)
	_, err := f.machine.Open(f.ctx, f.ws, "Anything", "Custom-ID")
	require.NoError(t, err)
	assert.Equal(t, "Custom-ID", f.ws.Session().TopicId)
	_, err = f.store.Get(f.ctx, f.ref("Custom-ID"))
	assert.NoError(t, err)
}

func TestResumeByIDKeepsStoredLabel(t *testing.T) {
	f := newFixture(t)
	f.open(t, "Space Exploration!")
	require.NoError(t, f.machine.Back(f.ctx, f.ws))

	created, err := f.machine.Open(f.ctx, f.ws, "", "space_exploration_")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Space Exploration!", f.ws.Session().TopicLabel)

	require.NoError(t, f.machine.SaveNotes(f.ctx, f.ws, "mars first"))
	doc, err := f.store.Get(f.ctx, f.ref("space_exploration_"))
	require.NoError(t, err)
	var stored model.Discussion
	require.NoError(t, doc.DataTo(&stored))
	assert.Equal(t, "Space Exploration!", stored.Area)
	assert.Equal(t, "Space Exploration!", stored.Genre)

	recent := f.ws.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "Space Exploration!", recent[0].TopicLabel)
}

func TestResumeByIDWithoutStoredLabelFallsBackToID(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(f.ctx, f.ref("legacy_topic"), docstore.Fields{
		model.FieldChatHistory: []model.StoredTurn{{Role: "model", Parts: []model.StoredPart{{Text: "Hi"}}}},
	}))

	_, err := f.machine.Open(f.ctx, f.ws, "", "legacy_topic")
	require.NoError(t, err)
	assert.Equal(t, "legacy_topic", f.ws.Session().TopicLabel)
}

func TestOpenFailureReturnsToTopicSelection(t *testing.T) {
	f := newFixture(t)
	f.gen.queue(reply{err: &chatbot.TransientFailure{Attempts: 5, LastStatus: 429}})

	_, err := f.machine.Open(f.ctx, f.ws, "Space", "")
	require.Error(t, err)

	var loadErr *apperror.SessionLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.True(t, chatbot.IsTransient(err))
	assert.True(t, IsNavigationReset(err))
	assert.Equal(t, StateTopicSelection, f.ws.State())
	assert.Empty(t, f.ws.Session().TopicId)
	assert.Equal(t, 0, f.store.activeWatches())
}

func TestOpenRequiresSignIn(t *testing.T) {
	f := newFixture(t)
	f.machine.SignOut(f.ws)

	_, err := f.machine.Open(f.ctx, f.ws, "Space", "")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
	assert.Equal(t, StateUnauthenticated, f.ws.State())
}

func TestSendMessageGrowsHistoryByTwo(t *testing.T) {
	f := newFixture(t)
	f.open(t, "Space")

	for i := 1; i <= 3; i++ {
		before := f.ws.Session().History
		msg := fmt.Sprintf("question %d", i)

		require.NoError(t, f.machine.SendMessage(f.ctx, f.ws, msg))

		after := f.ws.Session().History
		require.Len(t, after, len(before)+2)
		assert.Equal(t, before, after[:len(before)])
		assert.Equal(t, entity.Message{Role: entity.MessageRoleUser, Text: msg}, after[len(before)])
		assert.Equal(t, entity.MessageRoleModel, after[len(before)+1].Role)

		calls := f.gen.calls()
		last := calls[len(calls)-1]
		assert.Equal(t, msg, last.Prompt)
		assert.Len(t, last.History, len(before))
		assert.Equal(t, chatInstruction("Space"), last.SystemInstruction)
	}

	assert.Len(t, f.storedHistory(t, "space"), 7)
	assert.True(t, f.views.sawBusy())
	assert.False(t, f.ws.View().Busy)
}

func TestFailedSendRollsBack(t *testing.T) {
	f := newFixture(t)
	f.open(t, "Space")
	before := f.ws.Session().History

	f.gen.queue(reply{err: &chatbot.TransientFailure{Attempts: 5, LastStatus: 429}})
	err := f.machine.SendMessage(f.ctx, f.ws, "hello?")

	require.Error(t, err)
	assert.True(t, chatbot.IsTransient(err))
	assert.Equal(t, before, f.ws.Session().History)
	assert.Equal(t, StateActiveDiscussion, f.ws.State())
	assert.Len(t, f.storedHistory(t, "space"), len(before))

	view := f.ws.View()
	assert.False(t, view.Busy)
	assert.False(t, view.Loading)
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	f := newFixture(t)
	f.open(t, "Space")
	assert.ErrorIs(t, f.machine.SendMessage(f.ctx, f.ws, "   "), apperror.ErrInvalidInput)
}

func TestSendWhileInFlightIsRejected(t *testing.T) {
	f := newFixture(t)
	f.open(t, "Space")

	release := make(chan struct{})
	f.gen.setBlock(release, false)

	done := make(chan error, 1)
	go func() { done <- f.machine.SendMessage(f.ctx, f.ws, "first") }()
	require.Eventually(t, func() bool { return f.ws.View().Loading }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, f.machine.SendMessage(f.ctx, f.ws, "second"), apperror.ErrRequestInFlight)
	assert.ErrorIs(t, f.machine.RequestSuggestions(f.ctx, f.ws, false), apperror.ErrRequestInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, f.ws.Session().History, 3)
}

func TestBackDiscardsStaleReply(t *testing.T) {
	tests := []struct {
		name      string
		ignoreCtx bool
	}{
		{name: "generator honours cancellation", ignoreCtx: false},
		{name: "generator finishes late", ignoreCtx: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.open(t, "Space")
			greeting := f.ws.Session().History

			release := make(chan struct{})
			f.gen.setBlock(release, tt.ignoreCtx)

			done := make(chan error, 1)
			go func() { done <- f.machine.SendMessage(f.ctx, f.ws, "too late") }()
			require.Eventually(t, func() bool { return len(f.ws.Session().History) == 2 }, time.Second, 5*time.Millisecond)

			require.NoError(t, f.machine.Back(f.ctx, f.ws))
			assert.Equal(t, StateTopicSelection, f.ws.State())
			assert.Equal(t, greeting, f.ws.Session().History)

			close(release)
			assert.ErrorIs(t, <-done, apperror.ErrStaleResult)
			assert.Equal(t, greeting, f.ws.Session().History)
			assert.Len(t, f.storedHistory(t, "space"), 1)
		})
	}
}

func TestSuggestionsFlag(t *testing.T) {
	f := newFixture(t)
	f.open(t, "Space")
	assert.False(t, f.ws.Session().SuggestionsGenerated)

	f.gen.queue(reply{text: "1. Why?"})
	require.NoError(t, f.machine.RequestSuggestions(f.ctx, f.ws, false))

	sess := f.ws.Session()
	assert.True(t, sess.SuggestionsGenerated)
	require.Len(t, sess.History, 2)
	assert.Equal(t, "--- **Discussion Suggestions for Space** ---\n\n1. Why?", sess.History[1].Text)

	calls := f.gen.calls()
	last := calls[len(calls)-1]
	assert.Equal(t, suggestionsInstruction, last.SystemInstruction)
	assert.Equal(t, `The current topic is: "Space". Generate 10 discussion questions or facts now.`, last.Prompt)
	assert.Empty(t, last.History)

	require.NoError(t, f.machine.RequestSuggestions(f.ctx, f.ws, true))
	assert.True(t, f.ws.Session().SuggestionsGenerated)
	calls = f.gen.calls()
	assert.Contains(t, calls[len(calls)-1].Prompt, "completely new and distinct set")

	doc, err := f.store.Get(f.ctx, f.ref("space"))
	require.NoError(t, err)
	var has bool
	require.NoError(t, doc.Field(model.FieldHasSuggestions, &has))
	assert.True(t, has)
}

func TestSuggestionsFailureLeavesHistory(t *testing.T) {
	f := newFixture(t)
	f.open(t, "Space")
	before := f.ws.Session()

	f.gen.queue(reply{err: chatbot.ErrMalformedResponse})
	err := f.machine.RequestSuggestions(f.ctx, f.ws, false)

	assert.True(t, chatbot.IsMalformed(err))
	after := f.ws.Session()
	assert.Equal(t, before.History, after.History)
	assert.False(t, after.SuggestionsGenerated)
}

func TestSaveNotes(t *testing.T) {
	f := newFixture(t)
	f.open(t, "Space")

	require.NoError(t, f.machine.SaveNotes(f.ctx, f.ws, "rockets are cool"))
	doc, err := f.store.Get(f.ctx, f.ref("space"))
	require.NoError(t, err)
	var notes string
	require.NoError(t, doc.Field(model.FieldNoteContent, &notes))
	assert.Equal(t, "rockets are cool", notes)

	f.store.setFailure(errors.New("permission denied"))
	err = f.machine.SaveNotes(f.ctx, f.ws, "offline edit")
	var persistErr *apperror.PersistError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, "offline edit", f.ws.Session().Notes)
	assert.Equal(t, StateActiveDiscussion, f.ws.State())
}

func TestSaveNotesRequiresActiveDiscussion(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.machine.SaveNotes(f.ctx, f.ws, "x"), apperror.ErrNoActiveSession)
}

func TestPersistFailureAfterReplyKeepsHistory(t *testing.T) {
	f := newFixture(t)
	f.open(t, "Space")
	f.store.setFailure(errors.New("unavailable"))

	err := f.machine.SendMessage(f.ctx, f.ws, "hi")
	var persistErr *apperror.PersistError
	require.ErrorAs(t, err, &persistErr)
	assert.Len(t, f.ws.Session().History, 3)
}

func TestDeleteDeclinedChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.open(t, "Space")
	require.NoError(t, f.machine.SaveNotes(f.ctx, f.ws, "keep me"))
	before := f.ws.Session()

	var asked string
	deleted, err := f.machine.Delete(f.ctx, f.ws, ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
		asked = prompt
		return false, nil
	}))

	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, `Are you sure you want to permanently delete the discussion on "Space"? This cannot be undone.`, asked)
	assert.Equal(t, before, f.ws.Session())
	assert.Equal(t, StateActiveDiscussion, f.ws.State())
	_, err = f.store.Get(f.ctx, f.ref("space"))
	assert.NoError(t, err)
	assert.Equal(t, 1, f.store.activeWatches())
}

func TestDeleteConfirmedRemovesDocument(t *testing.T) {
	f := newFixture(t)
	f.open(t, "Space")
	require.NoError(t, f.machine.RequestSuggestions(f.ctx, f.ws, false))

	deleted, err := f.machine.Delete(f.ctx, f.ws, Answer(true))
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = f.store.Get(f.ctx, f.ref("space"))
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Equal(t, Session{}, f.ws.Session())
	assert.Equal(t, StateTopicSelection, f.ws.State())
	assert.Empty(t, f.ws.Recent())
	assert.Equal(t, 0, f.store.activeWatches())
}

func TestRecentIndexIsBoundedAndSorted(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	offsets := map[string]int{"a": 3, "b": 7, "c": 1, "d": 6, "e": 2, "f": 5, "g": 4}
	coll := docstore.CollectionRef{Tenant: testTenant, UserID: testUser, Collection: model.DiscussionCollection}
	for id, hours := range offsets {
		require.NoError(t, f.store.Set(f.ctx, coll.Doc(id), docstore.Fields{
			model.FieldGenre:       "Topic " + id,
			model.FieldLastUpdated: base.Add(time.Duration(hours) * time.Hour),
		}))
	}

	require.NoError(t, f.machine.Synchronizer().RefreshRecentIndex(f.ctx, f.ws))

	recent := f.ws.Recent()
	require.Len(t, recent, RecentLimit)
	ids := make([]string, len(recent))
	for i, r := range recent {
		ids[i] = r.TopicId
		if i > 0 {
			assert.False(t, r.LastUpdated.After(recent[i-1].LastUpdated))
		}
	}
	assert.Equal(t, []string{"b", "d", "f", "g", "a"}, ids)
	assert.Equal(t, "Topic b", recent[0].TopicLabel)
}

func TestRecentIndexWithoutIdentityIsNoop(t *testing.T) {
	f := newFixture(t)
	f.machine.SignOut(f.ws)
	assert.NoError(t, f.machine.Synchronizer().RefreshRecentIndex(f.ctx, f.ws))
	assert.Empty(t, f.ws.Recent())
}

func TestRemoteNotesRespectLocalEditing(t *testing.T) {
	f := newFixture(t)
	f.open(t, "Space")
	ref := f.ref("space")

	require.NoError(t, f.store.Set(f.ctx, ref, docstore.Fields{model.FieldNoteContent: "from tablet"}, docstore.Merge()))
	require.Eventually(t, func() bool { return f.ws.Session().Notes == "from tablet" }, 2*time.Second, 10*time.Millisecond)

	f.machine.SetLocalEditing(f.ws, true)
	require.NoError(t, f.store.Set(f.ctx, ref, docstore.Fields{model.FieldNoteContent: "clobber"}, docstore.Merge()))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "from tablet", f.ws.Session().Notes)

	f.machine.SetLocalEditing(f.ws, false)
	require.NoError(t, f.store.Set(f.ctx, ref, docstore.Fields{model.FieldNoteContent: "after typing"}, docstore.Merge()))
	require.Eventually(t, func() bool { return f.ws.Session().Notes == "after typing" }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.store.Delete(f.ctx, ref))
	require.Eventually(t, func() bool { return f.ws.Session().Notes == "" }, 2*time.Second, 10*time.Millisecond)
}

func TestSingleLiveSubscription(t *testing.T) {
	f := newFixture(t)

	f.open(t, "Space")
	assert.Equal(t, 1, f.store.activeWatches())

	f.open(t, "Oceans")
	assert.Equal(t, 1, f.store.activeWatches())

	require.NoError(t, f.machine.Back(f.ctx, f.ws))
	assert.Equal(t, 0, f.store.activeWatches())

	f.open(t, "Space")
	require.NoError(t, f.machine.Synchronizer().SubscribeLive(f.ctx, f.ws))
	assert.Equal(t, 1, f.store.activeWatches())

	f.machine.SignOut(f.ws)
	assert.Equal(t, 0, f.store.activeWatches())
	assert.Equal(t, StateUnauthenticated, f.ws.State())
	assert.Equal(t, Session{}, f.ws.Session())
}

type requestKey struct{}

func TestLiveSubscriptionDetachedFromRequestContext(t *testing.T) {
	f := newFixture(t)
	reqCtx, cancel := context.WithCancel(context.WithValue(f.ctx, requestKey{}, "request-scoped"))

	_, err := f.machine.Open(reqCtx, f.ws, "Space", "")
	require.NoError(t, err)
	cancel()

	f.store.mu.Lock()
	require.NotEmpty(t, f.store.watchCtxs)
	watchCtx := f.store.watchCtxs[len(f.store.watchCtxs)-1]
	f.store.mu.Unlock()
	assert.Nil(t, watchCtx.Value(requestKey{}))
	assert.NoError(t, watchCtx.Err())

	require.NoError(t, f.store.Set(f.ctx, f.ref("space"), docstore.Fields{model.FieldNoteContent: "still live"}, docstore.Merge()))
	require.Eventually(t, func() bool { return f.ws.Session().Notes == "still live" }, 2*time.Second, 10*time.Millisecond)
}
