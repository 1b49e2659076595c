package service

import (
	"context"
	"sync"
	"testing"

	"discussion-companion-be/internal/model"
	"discussion-companion-be/pkg/chatbot"
	"discussion-companion-be/pkg/database"
	"discussion-companion-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewGormDB(database.GormConfig{
		Driver: database.DriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		Quiet:  true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}))
	return db
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.EventType()
	}
	return out
}

type scriptedGenerator struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []chatbot.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req chatbot.Request) (string, error) {
	if req.Busy != nil {
		req.Busy(true)
		defer req.Busy(false)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "ok", nil
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r, nil
}

func (g *scriptedGenerator) lastRequest() chatbot.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

type pushed struct {
	userID  string
	msgType string
	data    interface{}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []pushed
}

func (n *recordingNotifier) Send(userID, msgType string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, pushed{userID: userID, msgType: msgType, data: data})
}

func (n *recordingNotifier) ofType(msgType string) []pushed {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []pushed
	for _, p := range n.sent {
		if p.msgType == msgType {
			out = append(out, p)
		}
	}
	return out
}
