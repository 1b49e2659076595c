package discussion

import (
	"context"
	"errors"
	"strings"

	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/mapper"
	"discussion-companion-be/internal/pkg/apperror"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/pkg/chatbot"
)

const machineModule = "Discussion"

// Machine runs the user-facing operations against a Workspace:
// Unauthenticated -> TopicSelection -> ActiveDiscussion, and back.
type Machine struct {
	sync      *Synchronizer
	generator chatbot.Generator
	mapper    *mapper.DiscussionMapper
	logger    logger.ILogger
}

func NewMachine(sync *Synchronizer, generator chatbot.Generator, log logger.ILogger) *Machine {
	return &Machine{
		sync:      sync,
		generator: generator,
		mapper:    mapper.NewDiscussionMapper(),
		logger:    log,
	}
}

func (m *Machine) Synchronizer() *Synchronizer {
	return m.sync
}

func (m *Machine) SignIn(ctx context.Context, ws *Workspace, identity entity.Identity) error {
	if unsub := ws.signIn(identity); unsub != nil {
		unsub()
	}
	ws.render()
	return m.sync.RefreshRecentIndex(ctx, ws)
}

// SignOut tears down the live subscription from any state.
func (m *Machine) SignOut(ws *Workspace) {
	if unsub := ws.signOut(); unsub != nil {
		unsub()
	}
	ws.render()
}

func (m *Machine) Open(ctx context.Context, ws *Workspace, topicLabel, discussionID string) (bool, error) {
	return m.sync.LoadOrCreate(ctx, ws, topicLabel, discussionID)
}

// Back leaves the open discussion. A request still running is cancelled and
// its result discarded.
func (m *Machine) Back(ctx context.Context, ws *Workspace) error {
	if unsub := ws.back(); unsub != nil {
		unsub()
	}
	ws.render()
	return m.sync.RefreshRecentIndex(ctx, ws)
}

// SendMessage appends the user's message at once, asks for a reply with the
// prior history, then saves. A failed completion removes the message again.
// A *apperror.PersistError means the reply was kept but not saved.
func (m *Machine) SendMessage(ctx context.Context, ws *Workspace, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperror.ErrInvalidInput
	}

	req, history, err := ws.beginSend(ctx, text)
	if err != nil {
		return err
	}
	ws.render()

	reply, err := m.generator.Generate(req.ctx, chatbot.Request{
		Prompt:            text,
		SystemInstruction: chatInstruction(req.label),
		History:           m.mapper.MessagesToHistory(history),
		Busy:              ws.busySignal(req),
	})
	if err != nil {
		if !ws.rollback(req) {
			return apperror.ErrStaleResult
		}
		ws.render()
		m.logger.Warn(machineModule, "Completion failed", map[string]interface{}{
			"topic_id": req.topicID,
			"error":    err.Error(),
		})
		return err
	}

	committed := ws.commit(req, func(sess *Session) {
		sess.History = append(sess.History, entity.Message{Role: entity.MessageRoleModel, Text: reply})
	})
	if !committed {
		return apperror.ErrStaleResult
	}
	ws.render()

	return m.sync.persist(ctx, ws, req.gen, nil)
}

// RequestSuggestions appends one model message with ten discussion prompts.
// Nothing is appended when the completion fails.
func (m *Machine) RequestSuggestions(ctx context.Context, ws *Workspace, isNewSet bool) error {
	req, _, err := ws.beginSuggestions(ctx)
	if err != nil {
		return err
	}
	ws.render()

	text, err := m.generator.Generate(req.ctx, chatbot.Request{
		Prompt:            suggestionsPrompt(req.label, isNewSet),
		SystemInstruction: suggestionsInstruction,
		Busy:              ws.busySignal(req),
	})
	if err != nil {
		if !ws.rollback(req) {
			return apperror.ErrStaleResult
		}
		ws.render()
		m.logger.Warn(machineModule, "Suggestions failed", map[string]interface{}{
			"topic_id": req.topicID,
			"error":    err.Error(),
		})
		return err
	}

	committed := ws.commit(req, func(sess *Session) {
		sess.History = append(sess.History, entity.Message{
			Role: entity.MessageRoleModel,
			Text: suggestionsHeader(req.label) + text,
		})
		sess.SuggestionsGenerated = true
	})
	if !committed {
		return apperror.ErrStaleResult
	}
	ws.render()

	return m.sync.persist(ctx, ws, req.gen, nil)
}

func (m *Machine) SaveNotes(ctx context.Context, ws *Workspace, notes string) error {
	if _, _, _, err := ws.liveTarget(); err != nil {
		return err
	}
	return m.sync.Persist(ctx, ws, notes)
}

// SetLocalEditing marks whether the user is typing in the notes. Remote notes
// updates are ignored while it is set.
func (m *Machine) SetLocalEditing(ws *Workspace, active bool) {
	if ws.setLocalEditing(active) {
		ws.render()
	}
}

func (m *Machine) Delete(ctx context.Context, ws *Workspace, confirmer Confirmer) (bool, error) {
	return m.sync.Delete(ctx, ws, confirmer)
}

// IsNavigationReset reports whether err sent the workspace back to topic
// selection.
func IsNavigationReset(err error) bool {
	var loadErr *apperror.SessionLoadError
	return errors.As(err, &loadErr)
}
