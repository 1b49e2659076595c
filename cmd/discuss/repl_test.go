package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"discussion-companion-be/internal/discussion"
	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/pkg/chatbot"
	"discussion-companion-be/pkg/docstore"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedGenerator struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func (g *cannedGenerator) Generate(_ context.Context, req chatbot.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, req.Prompt)
	if len(g.replies) == 0 {
		return "ok", nil
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r, nil
}

func runScript(t *testing.T, store docstore.Store, gen chatbot.Generator, script ...string) string {
	t.Helper()
	color.NoColor = true
	nop := logger.NewNopLogger()
	machine := discussion.NewMachine(discussion.NewSynchronizer(store, gen, "test-app", nop), gen, nop)

	var out bytes.Buffer
	in := strings.NewReader(strings.Join(script, "\n") + "\n")
	r := newREPL(machine, entity.Identity{UserId: "u1", Email: "u1@example.com"}, in, &out)
	require.NoError(t, r.run(context.Background()))
	return out.String()
}

func TestREPLDiscussion(t *testing.T) {
	store := docstore.NewMemoryStore(nil)
	t.Cleanup(func() { _ = store.Close() })
	gen := &cannedGenerator{replies: []string{"Hello, let's talk about tides.", "The moon pulls the sea."}}

	out := runScript(t, store, gen,
		"hello?",
		"/open Ocean Tides",
		"why do tides happen?",
		"/notes moon + sun",
		"/notes",
		"/ideas",
		"/back",
		"/quit",
	)

	assert.Contains(t, out, "No recent discussions.")
	assert.Contains(t, out, "Open a discussion first")
	assert.Contains(t, out, "Discussion: Ocean Tides")
	assert.Contains(t, out, "Hello, let's talk about tides.")
	assert.Contains(t, out, "The moon pulls the sea.")
	assert.Contains(t, out, "Notes saved.")
	assert.Contains(t, out, "moon + sun")
	assert.Contains(t, out, "Discussion Suggestions for Ocean Tides")
	assert.Contains(t, out, "1. Ocean Tides")
}

func TestREPLResumeAndDelete(t *testing.T) {
	store := docstore.NewMemoryStore(nil)
	t.Cleanup(func() { _ = store.Close() })
	gen := &cannedGenerator{}

	runScript(t, store, gen, "/open Jazz", "/back", "/quit")

	out := runScript(t, store, gen,
		"/resume 9",
		"/resume 1",
		"/delete",
		"n",
		"/delete",
		"y",
		"/quit",
	)

	assert.Contains(t, out, "Usage: /resume N (1-1)")
	assert.Contains(t, out, "Discussion: Jazz")
	assert.Contains(t, out, `Are you sure you want to permanently delete the discussion on "Jazz"?`)
	assert.Contains(t, out, "Discussion deleted.")
	assert.Contains(t, out, "No recent discussions.")
	assert.Len(t, gen.prompts, 1)
}
