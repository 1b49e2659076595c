package service

import (
	"context"
	"sync"
	"time"

	"discussion-companion-be/internal/discussion"
	"discussion-companion-be/internal/dto"
	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/internal/repository/memory"
	"discussion-companion-be/pkg/events"
)

const (
	discussionModule = "DiscussionService"

	// Push message types.
	PushDiscussion = "discussion"
	PushBusy       = "busy"
	PushNotes      = "notes"

	workspaceIdleTTL = 2 * time.Hour
)

// Notifier delivers a typed message to every connection of a user.
type Notifier interface {
	Send(userID string, msgType string, data interface{})
}

type IDiscussionService interface {
	State(ctx context.Context, identity entity.Identity) (discussion.View, error)
	Recent(ctx context.Context, identity entity.Identity) ([]entity.RecentDiscussion, error)
	Open(ctx context.Context, identity entity.Identity, req *dto.OpenDiscussionRequest) (*dto.OpenDiscussionResponse, error)
	Back(ctx context.Context, identity entity.Identity) (discussion.View, error)
	SendMessage(ctx context.Context, identity entity.Identity, req *dto.SendMessageRequest) (discussion.View, error)
	RequestSuggestions(ctx context.Context, identity entity.Identity, req *dto.SuggestionsRequest) (discussion.View, error)
	SaveNotes(ctx context.Context, identity entity.Identity, req *dto.SaveNotesRequest) (discussion.View, error)
	SetEditing(ctx context.Context, identity entity.Identity, active bool) (discussion.View, error)
	// SetEditingFromClient applies an editing frame from a websocket client.
	SetEditingFromClient(userID string, active bool)
	Delete(ctx context.Context, identity entity.Identity, confirmed bool) (*dto.DeleteDiscussionResponse, error)
	// SignOut drops the user's workspace and its live subscription.
	SignOut(userID string)
}

type discussionService struct {
	machine    *discussion.Machine
	workspaces *memory.WorkspaceRepository
	notifier   Notifier
	publisher  events.Publisher
	logger     logger.ILogger
}

func NewDiscussionService(machine *discussion.Machine, notifier Notifier, publisher events.Publisher, log logger.ILogger) IDiscussionService {
	s := &discussionService{
		machine:   machine,
		notifier:  notifier,
		publisher: publisher,
		logger:    log,
	}
	s.workspaces = memory.NewWorkspaceRepository(workspaceIdleTTL, func(userID string, ws *discussion.Workspace) {
		s.machine.SignOut(ws)
		s.logger.Info(discussionModule, "Workspace released", map[string]interface{}{"user_id": userID})
	})
	return s
}

func (s *discussionService) workspace(ctx context.Context, identity entity.Identity) (*discussion.Workspace, error) {
	ws, created := s.workspaces.GetOrCreate(identity.UserId, func() *discussion.Workspace {
		return discussion.NewWorkspace(s.pusher(identity.UserId))
	})
	if !created {
		if current, ok := ws.Identity(); ok && current == identity {
			return ws, nil
		}
	}
	if err := s.machine.SignIn(ctx, ws, identity); err != nil {
		s.logger.Warn(discussionModule, "Failed to load recent discussions", map[string]interface{}{
			"user_id": identity.UserId,
			"error":   err.Error(),
		})
	}
	return ws, nil
}

// pusher forwards views to the user's connections. Views rendered from
// different goroutines can arrive out of order; older versions are dropped.
func (s *discussionService) pusher(userID string) discussion.Renderer {
	var (
		mu    sync.Mutex
		last  discussion.View
		ready bool
	)
	return func(view discussion.View) {
		if s.notifier == nil {
			return
		}
		mu.Lock()
		if ready && view.Version <= last.Version {
			mu.Unlock()
			return
		}
		busyChanged := !ready || view.Busy != last.Busy
		notesChanged := ready && view.Session.TopicId == last.Session.TopicId && view.Session.Notes != last.Session.Notes
		last, ready = view, true
		mu.Unlock()

		if busyChanged {
			s.notifier.Send(userID, PushBusy, map[string]bool{"active": view.Busy})
		}
		if notesChanged {
			s.notifier.Send(userID, PushNotes, map[string]string{"notes": view.Session.Notes})
		}
		s.notifier.Send(userID, PushDiscussion, view)
	}
}

func (s *discussionService) State(ctx context.Context, identity entity.Identity) (discussion.View, error) {
	ws, err := s.workspace(ctx, identity)
	if err != nil {
		return discussion.View{}, err
	}
	return ws.View(), nil
}

func (s *discussionService) Recent(ctx context.Context, identity entity.Identity) ([]entity.RecentDiscussion, error) {
	ws, err := s.workspace(ctx, identity)
	if err != nil {
		return nil, err
	}
	if err := s.machine.Synchronizer().RefreshRecentIndex(ctx, ws); err != nil {
		return nil, err
	}
	return ws.Recent(), nil
}

func (s *discussionService) Open(ctx context.Context, identity entity.Identity, req *dto.OpenDiscussionRequest) (*dto.OpenDiscussionResponse, error) {
	ws, err := s.workspace(ctx, identity)
	if err != nil {
		return nil, err
	}
	created, err := s.machine.Open(ctx, ws, req.TopicLabel, req.DiscussionId)
	if err != nil {
		return nil, err
	}

	view := ws.View()
	if created {
		s.publish(ctx, events.DiscussionCreated, identity, view.Session)
	}
	return &dto.OpenDiscussionResponse{Created: created, Discussion: view}, nil
}

func (s *discussionService) Back(ctx context.Context, identity entity.Identity) (discussion.View, error) {
	ws, err := s.workspace(ctx, identity)
	if err != nil {
		return discussion.View{}, err
	}
	if err := s.machine.Back(ctx, ws); err != nil {
		s.logger.Warn(discussionModule, "Failed to refresh recent discussions", map[string]interface{}{
			"user_id": identity.UserId,
			"error":   err.Error(),
		})
	}
	return ws.View(), nil
}

func (s *discussionService) SendMessage(ctx context.Context, identity entity.Identity, req *dto.SendMessageRequest) (discussion.View, error) {
	return s.mutate(ctx, identity, func(ws *discussion.Workspace) error {
		return s.machine.SendMessage(ctx, ws, req.Message)
	})
}

func (s *discussionService) RequestSuggestions(ctx context.Context, identity entity.Identity, req *dto.SuggestionsRequest) (discussion.View, error) {
	return s.mutate(ctx, identity, func(ws *discussion.Workspace) error {
		return s.machine.RequestSuggestions(ctx, ws, req.IsNewSet)
	})
}

func (s *discussionService) SaveNotes(ctx context.Context, identity entity.Identity, req *dto.SaveNotesRequest) (discussion.View, error) {
	return s.mutate(ctx, identity, func(ws *discussion.Workspace) error {
		return s.machine.SaveNotes(ctx, ws, req.Notes)
	})
}

// mutate runs a persisting operation and reports the persisted event.
func (s *discussionService) mutate(ctx context.Context, identity entity.Identity, op func(ws *discussion.Workspace) error) (discussion.View, error) {
	ws, err := s.workspace(ctx, identity)
	if err != nil {
		return discussion.View{}, err
	}
	if err := op(ws); err != nil {
		return ws.View(), err
	}
	view := ws.View()
	s.publish(ctx, events.DiscussionPersisted, identity, view.Session)
	return view, nil
}

func (s *discussionService) SetEditing(ctx context.Context, identity entity.Identity, active bool) (discussion.View, error) {
	ws, err := s.workspace(ctx, identity)
	if err != nil {
		return discussion.View{}, err
	}
	s.machine.SetLocalEditing(ws, active)
	return ws.View(), nil
}

// A user without a workspace has nothing to edit.
func (s *discussionService) SetEditingFromClient(userID string, active bool) {
	if ws, ok := s.workspaces.Get(userID); ok {
		s.machine.SetLocalEditing(ws, active)
	}
}

func (s *discussionService) Delete(ctx context.Context, identity entity.Identity, confirmed bool) (*dto.DeleteDiscussionResponse, error) {
	ws, err := s.workspace(ctx, identity)
	if err != nil {
		return nil, err
	}
	before := ws.Session()

	deleted, err := s.machine.Delete(ctx, ws, discussion.Answer(confirmed))
	if err != nil {
		return nil, err
	}
	if deleted {
		s.publish(ctx, events.DiscussionDeleted, identity, before)
	}
	return &dto.DeleteDiscussionResponse{Deleted: deleted, Discussion: ws.View()}, nil
}

func (s *discussionService) SignOut(userID string) {
	s.workspaces.Delete(userID)
}

func (s *discussionService) publish(ctx context.Context, eventType string, identity entity.Identity, sess discussion.Session) {
	if s.publisher == nil {
		return
	}
	ev := events.New(eventType, map[string]interface{}{
		"user_id":     identity.UserId,
		"topic_id":    sess.TopicId,
		"topic_label": sess.TopicLabel,
		"messages":    len(sess.History),
	})
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn(discussionModule, "Failed to publish event", map[string]interface{}{
			"type":  eventType,
			"error": err.Error(),
		})
	}
}

