// Package apperror holds the failure types surfaced at operation boundaries
// and their mapping to user-visible text and HTTP status codes.
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"discussion-companion-be/pkg/chatbot"
)

var (
	ErrRequestInFlight = errors.New("a request is already in progress for this discussion")
	ErrNoActiveSession = errors.New("no active discussion")
	ErrUnauthenticated = errors.New("not signed in")
	ErrStaleResult     = errors.New("discussion changed while the request was running")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoCategories    = errors.New("no conversation categories selected")
	ErrEmptyNote       = errors.New("note is empty")
)

// SessionLoadError wraps any failure while opening a discussion. The caller
// must return to topic selection.
type SessionLoadError struct {
	TopicLabel string
	Err        error
}

func (e *SessionLoadError) Error() string {
	return fmt.Sprintf("error starting discussion %q: %v", e.TopicLabel, e.Err)
}

func (e *SessionLoadError) Unwrap() error { return e.Err }

// PersistError is a failed save. In-memory state stays authoritative.
type PersistError struct {
	TopicID string
	Err     error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("error saving discussion %q: %v", e.TopicID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

type CredentialCode string

const (
	CodeInvalidCredential   CredentialCode = "auth/invalid-credential"
	CodeUserNotFound        CredentialCode = "auth/user-not-found"
	CodeWrongPassword       CredentialCode = "auth/wrong-password"
	CodeTooManyRequests     CredentialCode = "auth/too-many-requests"
	CodeOperationNotAllowed CredentialCode = "auth/operation-not-allowed"
	CodeEmailAlreadyInUse   CredentialCode = "auth/email-already-in-use"
	CodeWeakPassword        CredentialCode = "auth/weak-password"
	CodeInvalidEmail        CredentialCode = "auth/invalid-email"
)

var credentialMessages = map[CredentialCode]string{
	CodeInvalidCredential:   "Invalid email or password.",
	CodeUserNotFound:        "No account found with this email.",
	CodeWrongPassword:       "Incorrect password.",
	CodeTooManyRequests:     "Too many failed attempts. Please try again later.",
	CodeOperationNotAllowed: "This sign-in method is not enabled.",
	CodeEmailAlreadyInUse:   "An account with this email already exists.",
	CodeWeakPassword:        "Password should be at least 6 characters.",
	CodeInvalidEmail:        "Please enter a valid email address.",
}

const genericCredentialMessage = "Authentication failed. Please try again."

type CredentialError struct {
	Code CredentialCode
	Err  error
}

func NewCredentialError(code CredentialCode) *CredentialError {
	return &CredentialError{Code: code}
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// Message returns the fixed human-readable text for the code.
func (e *CredentialError) Message() string {
	if msg, ok := credentialMessages[e.Code]; ok {
		return msg
	}
	return genericCredentialMessage
}

// UserMessage converts any failure into the notification shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var credErr *CredentialError
	var loadErr *SessionLoadError
	var persistErr *PersistError
	var statusErr *chatbot.StatusError

	switch {
	case errors.As(err, &credErr):
		return credErr.Message()
	case errors.As(err, &loadErr):
		return fmt.Sprintf("Error starting discussion: %s", completionMessage(loadErr.Err))
	case errors.As(err, &persistErr):
		return "Error saving notes. Your changes are kept locally; please try again."
	case errors.Is(err, ErrRequestInFlight):
		return "Please wait for the current response to finish."
	case errors.Is(err, ErrNoActiveSession):
		return "Open a discussion first."
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in to continue."
	case errors.Is(err, ErrNoCategories):
		return "Please select at least one category in Settings."
	case errors.Is(err, ErrEmptyNote):
		return "Please add a note before saving."
	case errors.Is(err, ErrStaleResult), errors.Is(err, context.Canceled):
		return "The request was cancelled."
	case chatbot.IsTransient(err), chatbot.IsMalformed(err), errors.As(err, &statusErr):
		return completionMessage(err)
	default:
		return err.Error()
	}
}

func completionMessage(err error) string {
	var statusErr *chatbot.StatusError
	switch {
	case chatbot.IsTransient(err):
		return "The AI service is busy right now. Please try again in a moment."
	case chatbot.IsMalformed(err):
		return "The AI service returned an unexpected response. Please try again."
	case errors.As(err, &statusErr):
		return fmt.Sprintf("The AI service rejected the request (%d): %s", statusErr.StatusCode, statusErr.Message)
	default:
		return err.Error()
	}
}

// HTTPStatus picks the response status for a failure.
func HTTPStatus(err error) int {
	var credErr *CredentialError
	var loadErr *SessionLoadError
	var persistErr *PersistError

	switch {
	case errors.As(err, &credErr):
		switch credErr.Code {
		case CodeTooManyRequests:
			return http.StatusTooManyRequests
		case CodeEmailAlreadyInUse:
			return http.StatusConflict
		case CodeWeakPassword, CodeInvalidEmail:
			return http.StatusBadRequest
		case CodeOperationNotAllowed:
			return http.StatusForbidden
		default:
			return http.StatusUnauthorized
		}
	case errors.Is(err, ErrRequestInFlight), errors.Is(err, ErrStaleResult):
		return http.StatusConflict
	case errors.Is(err, ErrNoActiveSession), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoCategories), errors.Is(err, ErrEmptyNote):
		return http.StatusBadRequest
	case errors.As(err, &loadErr), chatbot.IsTransient(err), chatbot.IsMalformed(err):
		return http.StatusBadGateway
	case errors.As(err, &persistErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
