package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type GeminiChatParts struct {
	Text string `json:"text"`
}

type GeminiChatContent struct {
	Parts []*GeminiChatParts `json:"parts"`
	Role  string             `json:"role,omitempty"`
}

type GeminiSystemInstruction struct {
	Parts []*GeminiChatParts `json:"parts"`
}

// GenerationConfig carries the optional structured-output controls.
// A non-empty ResponseMimeType disables the search grounding tool.
type GenerationConfig struct {
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
}

type GeminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type GeminiChatRequest struct {
	Contents          []*GeminiChatContent     `json:"contents"`
	GenerationConfig  GenerationConfig         `json:"generationConfig"`
	SystemInstruction *GeminiSystemInstruction `json:"systemInstruction,omitempty"`
	Tools             []*GeminiTool            `json:"tools,omitempty"`
}

type ChatHistory struct {
	Chat string
	Role string
}

type GeminiChatCandidate struct {
	Content *GeminiChatContent `json:"content"`
}

type GeminiChatResponse struct {
	Candidates []*GeminiChatCandidate `json:"candidates"`
}

const (
	ChatMessageRoleUser  = "user"
	ChatMessageRoleModel = "model"
)

const (
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = time.Second
)

// BusySignal is toggled on at the start of a completion call and off when it
// returns, whatever the outcome. It is a UI hint, not a lock.
type BusySignal func(active bool)

// Request is one completion request: History followed by Prompt as the new user turn.
type Request struct {
	Prompt            string
	SystemInstruction string
	Config            GenerationConfig
	History           []*ChatHistory
	Busy              BusySignal
}

// Generator is the contract the session layer depends on.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Client struct {
	endpoint       string
	apiKey         string
	httpClient     *http.Client
	maxAttempts    int
	initialBackoff time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

// WithAPIKey sets the key sent in x-goog-api-key. Leave it unset when the
// endpoint is the first-party proxy.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.initialBackoff = d
		}
	}
}

// WithSleeper replaces the backoff wait, used by tests to record delays.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// GenerateContentURL builds the upstream generateContent URL for a model.
func GenerateContentURL(baseURL, model string) string {
	return fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(baseURL, "/"), model)
}

func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:       endpoint,
		httpClient:     &http.Client{},
		maxAttempts:    DefaultMaxAttempts,
		initialBackoff: DefaultInitialBackoff,
		sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func BuildRequest(req Request) *GeminiChatRequest {
	contents := make([]*GeminiChatContent, 0, len(req.History)+1)
	for _, chatHistory := range req.History {
		contents = append(contents, &GeminiChatContent{
			Parts: []*GeminiChatParts{{Text: chatHistory.Chat}},
			Role:  chatHistory.Role,
		})
	}
	contents = append(contents, &GeminiChatContent{
		Parts: []*GeminiChatParts{{Text: req.Prompt}},
		Role:  ChatMessageRoleUser,
	})

	payload := &GeminiChatRequest{
		Contents:         contents,
		GenerationConfig: req.Config,
		SystemInstruction: &GeminiSystemInstruction{
			Parts: []*GeminiChatParts{{Text: req.SystemInstruction}},
		},
	}
	// No grounding for structured JSON output.
	if req.Config.ResponseMimeType == "" {
		payload.Tools = []*GeminiTool{{GoogleSearch: &struct{}{}}}
	}
	return payload
}

func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if req.Busy != nil {
		req.Busy(true)
		defer req.Busy(false)
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrEmptyPrompt
	}

	payloadJson, err := json.Marshal(BuildRequest(req))
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	resBody, err := c.doWithRetry(ctx, payloadJson)
	if err != nil {
		return "", err
	}

	return extractText(resBody)
}

func (c *Client) doWithRetry(ctx context.Context, payloadJson []byte) ([]byte, error) {
	delay := c.initialBackoff
	failure := &TransientFailure{}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		failure.Attempts = attempt

		body, status, err := c.post(ctx, payloadJson)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failure.LastErr = err
			failure.LastStatus = 0
		case status == http.StatusTooManyRequests:
			failure.LastErr = nil
			failure.LastStatus = status
		case status < 200 || status > 299:
			return nil, &StatusError{StatusCode: status, Message: errorMessage(body, status)}
		default:
			return body, nil
		}

		if attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}

	return nil, failure
}

func (c *Client) post(ctx context.Context, payloadJson []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payloadJson))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, err
	}
	return resBody, res.StatusCode, nil
}

func extractText(resBody []byte) (string, error) {
	var geminiRes GeminiChatResponse
	if err := json.Unmarshal(resBody, &geminiRes); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(geminiRes.Candidates) == 0 ||
		geminiRes.Candidates[0] == nil ||
		geminiRes.Candidates[0].Content == nil ||
		len(geminiRes.Candidates[0].Content.Parts) == 0 ||
		geminiRes.Candidates[0].Content.Parts[0] == nil ||
		geminiRes.Candidates[0].Content.Parts[0].Text == "" {
		return "", ErrMalformedResponse
	}
	return geminiRes.Candidates[0].Content.Parts[0].Text, nil
}

// errorMessage reads both the proxy shape {"error": "..."} and the upstream
// shape {"error": {"message": "..."}}.
func errorMessage(body []byte, status int) string {
	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Error != "" {
		return flat.Error
	}
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}
	return fmt.Sprintf("API call failed with status: %d", status)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
