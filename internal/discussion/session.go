// Package discussion holds the per-user discussion state machine and its
// synchronization with the document store.
package discussion

import (
	"context"
	"time"

	"discussion-companion-be/internal/entity"
)

type State string

const (
	StateUnauthenticated  State = "unauthenticated"
	StateTopicSelection   State = "topic_selection"
	StateActiveDiscussion State = "active_discussion"
)

const (
	RecentFetchLimit = 10
	RecentLimit      = 5
)

// Session is the in-memory record of the open discussion.
type Session struct {
	TopicId              string           `json:"topicId"`
	TopicLabel           string           `json:"topicLabel"`
	History              []entity.Message `json:"history"`
	Notes                string           `json:"notes"`
	SuggestionsGenerated bool             `json:"suggestionsGenerated"`
	LastUpdated          time.Time        `json:"lastUpdated"`
}

func (s Session) clone() Session {
	out := s
	out.History = append([]entity.Message(nil), s.History...)
	return out
}

// View is what a renderer receives. Views may arrive from several goroutines;
// Version orders them.
type View struct {
	Version      uint64                    `json:"version"`
	State        State                     `json:"state"`
	Loading      bool                      `json:"loading"`
	Busy         bool                      `json:"busy"`
	LocalEditing bool                      `json:"localEditing"`
	Session      Session                   `json:"session"`
	Recent       []entity.RecentDiscussion `json:"recent"`
}

type Renderer func(View)

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Answer is a Confirmer with a fixed reply, for callers that already asked.
type Answer bool

func (a Answer) Confirm(context.Context, string) (bool, error) {
	return bool(a), nil
}
