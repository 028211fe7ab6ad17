package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dgnsrekt/fellowship/internal/api"
)

// Common speech errors
var (
	// ErrEmptyText indicates an utterance with nothing to say
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrTextTooLong indicates an utterance over MaxTextSize
	ErrTextTooLong = errors.New("text too long")

	// ErrInvalidRate indicates a non-positive speech rate
	ErrInvalidRate = errors.New("rate must be positive")

	// ErrNoVoices indicates the local voice catalog is empty
	ErrNoVoices = errors.New("no local voices installed")

	// ErrUnknownBackend indicates an unknown backend name
	ErrUnknownBackend = errors.New("unknown speech backend")
)

// ErrorCode identifies the stage that failed.
type ErrorCode string

const (
	ErrorCodeSynthesis ErrorCode = "SYNTHESIS"
	ErrorCodeNetwork   ErrorCode = "NETWORK"
	ErrorCodeStatus    ErrorCode = "STATUS"
	ErrorCodeDecode    ErrorCode = "DECODE"
	ErrorCodePlayback  ErrorCode = "PLAYBACK"
	ErrorCodeNoVoice   ErrorCode = "NO_VOICE"
)

// Error is a failed utterance.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewError creates an utterance error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// IsRetryable returns true if the same utterance may succeed later.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrorCodeNetwork:
		return true
	case ErrorCodeStatus:
		status := api.StatusCode(e.Cause)
		return status == http.StatusTooManyRequests || status >= 500
	default:
		return false
	}
}

// IsRetryable reports whether err is an utterance error worth retrying.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsRetryable()
}

// IsCanceled reports whether err only says the work was superseded.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
