package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"discussion-companion-be/pkg/events"
	natsbus "discussion-companion-be/pkg/nats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logLine struct {
	level   string
	message string
	details map[string]interface{}
}

type capturingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *capturingLogger) add(level, message string, details map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level: level, message: message, details: details})
}

func (l *capturingLogger) Debug(_, message string, details map[string]interface{}) {
	l.add("debug", message, details)
}
func (l *capturingLogger) Info(_, message string, details map[string]interface{}) {
	l.add("info", message, details)
}
func (l *capturingLogger) Warn(_, message string, details map[string]interface{}) {
	l.add("warn", message, details)
}
func (l *capturingLogger) Error(_, message string, details map[string]interface{}) {
	l.add("error", message, details)
}
func (l *capturingLogger) Sync() error { return nil }

type fakeSubscriber struct {
	subject string
	durable string
	handler natsbus.EventHandler
	err     error
}

func (s *fakeSubscriber) Subscribe(subject, durable string, handler natsbus.EventHandler) error {
	s.subject, s.durable, s.handler = subject, durable, handler
	return s.err
}

func TestConsumerSubscribesToAllEvents(t *testing.T) {
	sub := &fakeSubscriber{}
	log := &capturingLogger{}
	cs := NewConsumerService(sub, log)

	require.NoError(t, cs.Consume(context.Background()))
	assert.Equal(t, "events.>", sub.subject)
	assert.Equal(t, activityDurable, sub.durable)

	ev := events.New(events.DiscussionCreated, map[string]interface{}{"user_id": "alice", "topic_id": "space"})
	require.NoError(t, sub.handler(context.Background(), ev))

	require.Len(t, log.lines, 2)
	line := log.lines[1]
	assert.Equal(t, "info", line.level)
	assert.Equal(t, events.DiscussionCreated, line.details["event"])
	assert.Equal(t, "space", line.details["topic_id"])
}

func TestConsumerUnknownEventAtDebug(t *testing.T) {
	log := &capturingLogger{}
	cs := NewConsumerService(&fakeSubscriber{}, log)

	require.NoError(t, cs.Handle(context.Background(), events.New("billing.paid", nil)))
	require.Len(t, log.lines, 1)
	assert.Equal(t, "debug", log.lines[0].level)
}

func TestConsumerSubscribeFailure(t *testing.T) {
	cs := NewConsumerService(&fakeSubscriber{err: errors.New("no stream")}, &capturingLogger{})
	assert.Error(t, cs.Consume(context.Background()))
}
