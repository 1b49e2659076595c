package chatbot

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse means the endpoint answered 2xx without a usable
	// candidates[0].content.parts[0].text. It is never retried.
	ErrMalformedResponse = errors.New("received empty or malformed response from the AI")

	ErrEmptyPrompt = errors.New("prompt must not be empty")
)

// TransientFailure is returned once every attempt failed on a transport
// error or a 429.
type TransientFailure struct {
	Attempts   int
	LastStatus int
	LastErr    error
}

func (e *TransientFailure) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("completion failed after %d attempts: %v", e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("completion failed after %d attempts: last status %d", e.Attempts, e.LastStatus)
}

func (e *TransientFailure) Unwrap() error {
	return e.LastErr
}

// StatusError is a terminal non-429 failure status from the endpoint.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status error, got status %d: %s", e.StatusCode, e.Message)
}

func IsTransient(err error) bool {
	var tf *TransientFailure
	return errors.As(err, &tf)
}

func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}
