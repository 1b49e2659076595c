package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{"candidates":[{"content":{"parts":[{"text":"hello there"}]}}]}`

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

// scriptedServer answers with the given statuses in order, then 200.
func scriptedServer(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1))
		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGenerate_Success(t *testing.T) {
	srv, calls := scriptedServer(t)
	client := NewClient(srv.URL)

	text, err := client.Generate(context.Background(), Request{Prompt: "hi", SystemInstruction: "be nice"})

	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestGenerate_RetriesOn429ThenSucceeds(t *testing.T) {
	srv, calls := scriptedServer(t, http.StatusTooManyRequests)
	client := NewClient(srv.URL)

	start := time.Now()
	text, err := client.Generate(context.Background(), Request{Prompt: "hi"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
	assert.GreaterOrEqual(t, elapsed, time.Second)
}

func TestGenerate_ExhaustsAfterFive429(t *testing.T) {
	srv, calls := scriptedServer(t, 429, 429, 429, 429, 429, 429)
	sleeps := &recordedSleeps{}
	client := NewClient(srv.URL, WithSleeper(sleeps.sleep))

	_, err := client.Generate(context.Background(), Request{Prompt: "hi"})

	var tf *TransientFailure
	require.True(t, errors.As(err, &tf))
	assert.Equal(t, 5, tf.Attempts)
	assert.Equal(t, http.StatusTooManyRequests, tf.LastStatus)
	assert.EqualValues(t, 5, atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, sleeps.delays)
}

func TestGenerate_NonRetryableStatusFailsImmediately(t *testing.T) {
	srv, calls := scriptedServer(t, http.StatusForbidden)
	sleeps := &recordedSleeps{}
	client := NewClient(srv.URL, WithSleeper(sleeps.sleep))

	_, err := client.Generate(context.Background(), Request{Prompt: "hi"})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Equal(t, "nope", se.Message)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	assert.Empty(t, sleeps.delays)
	assert.False(t, IsTransient(err))
}

func TestGenerate_TransportErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	sleeps := &recordedSleeps{}
	client := NewClient(url, WithSleeper(sleeps.sleep), WithMaxAttempts(3))

	_, err := client.Generate(context.Background(), Request{Prompt: "hi"})

	var tf *TransientFailure
	require.True(t, errors.As(err, &tf))
	assert.Equal(t, 3, tf.Attempts)
	assert.Error(t, tf.LastErr)
	assert.Len(t, sleeps.delays, 2)
}

func TestGenerate_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no candidates", body: `{"candidates":[]}`},
		{name: "no parts", body: `{"candidates":[{"content":{"parts":[]}}]}`},
		{name: "no content", body: `{"candidates":[{}]}`},
		{name: "not json", body: `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Generate(context.Background(), Request{Prompt: "hi"})

			assert.True(t, IsMalformed(err))
			assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
		})
	}
}

func TestGenerate_BusySignalClearsOnFailure(t *testing.T) {
	srv, _ := scriptedServer(t, http.StatusInternalServerError)
	var states []bool
	busy := func(active bool) { states = append(states, active) }

	_, err := NewClient(srv.URL).Generate(context.Background(), Request{Prompt: "hi", Busy: busy})

	require.Error(t, err)
	assert.Equal(t, []bool{true, false}, states)
}

func TestGenerate_PayloadShape(t *testing.T) {
	var got map[string]json.RawMessage
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	history := []*ChatHistory{
		{Role: ChatMessageRoleModel, Chat: "welcome"},
		{Role: ChatMessageRoleUser, Chat: "tell me more"},
	}
	_, err := NewClient(srv.URL, WithAPIKey("secret")).Generate(context.Background(), Request{
		Prompt:            "tell me more",
		SystemInstruction: "facilitate",
		History:           history,
	})
	require.NoError(t, err)

	assert.Equal(t, "secret", apiKey)

	var contents []GeminiChatContent
	require.NoError(t, json.Unmarshal(got["contents"], &contents))
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[0].Role)
	assert.Equal(t, "user", contents[2].Role)
	assert.Equal(t, "tell me more", contents[2].Parts[0].Text)

	assert.JSONEq(t, `{"parts":[{"text":"facilitate"}]}`, string(got["systemInstruction"]))
	assert.JSONEq(t, `{}`, string(got["generationConfig"]))
	assert.JSONEq(t, `[{"google_search":{}}]`, string(got["tools"]))
}

func TestBuildRequest_StructuredOutputDropsTools(t *testing.T) {
	payload := BuildRequest(Request{
		Prompt: "list",
		Config: GenerationConfig{ResponseMimeType: "application/json"},
	})

	assert.Nil(t, payload.Tools)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "google_search")
}

func TestGenerate_ContextCancelStopsBackoff(t *testing.T) {
	srv, calls := scriptedServer(t, 429, 429, 429)
	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(srv.URL, WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := client.Generate(ctx, Request{Prompt: "hi"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	_, err := NewClient("http://unused").Generate(context.Background(), Request{Prompt: "  "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}
