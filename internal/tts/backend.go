// Package tts speaks single verses through one of two interchangeable
// backends: piper voices on this machine, or audio rendered by the reader's
// web service. Both report the same event lifecycle.
package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgnsrekt/fellowship/internal/tts/engines"
)

// MaxTextSize is the longest text spoken as one utterance.
const MaxTextSize = engines.MaxTextSize

// Kind selects a backend.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

func (k Kind) String() string {
	return string(k)
}

// ParseKind normalises a backend name. "piper" and "device" name the local
// backend, "network" and "cloud" the remote one.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "piper", "device":
		return KindLocal, nil
	case "remote", "network", "cloud":
		return KindRemote, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// Utterance is one piece of text to speak.
type Utterance struct {
	Text        string
	Rate        float64 // 1.0 is normal speed
	Voice       string  // backend specific, empty for the default
	Translation string  // the remote backend keys its audio by translation
}

// Validate checks the utterance before any work starts.
func (u Utterance) Validate() error {
	if strings.TrimSpace(u.Text) == "" {
		return ErrEmptyText
	}
	if len(u.Text) > MaxTextSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTextTooLong, len(u.Text), MaxTextSize)
	}
	if u.Rate <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRate, u.Rate)
	}
	return nil
}

// EventType is a step in an utterance's lifecycle.
type EventType int

const (
	EventStarted EventType = iota
	EventEnded
	EventErrored
	EventPaused
	EventResumed
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventEnded:
		return "ended"
	case EventErrored:
		return "errored"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no event follows this one.
func (t EventType) Terminal() bool {
	return t == EventEnded || t == EventErrored
}

// Event is reported by a handle. Err is set on EventErrored.
type Event struct {
	Type EventType
	Err  error
}

// Backend speaks utterances.
//
// Speak returns immediately. The handle then reports exactly one
// EventStarted once audio is audible, followed by exactly one EventEnded or
// EventErrored. EventPaused and EventResumed may come in between. Events are
// delivered from the handle's own goroutine and the callback must not call
// back into the handle. Cancelling ctx abandons the utterance silently.
type Backend interface {
	Kind() Kind
	Speak(ctx context.Context, u Utterance, emit func(Event)) (Handle, error)
}

// Handle controls one utterance. All methods are idempotent and do nothing
// once the utterance ended. A stopped handle reports nothing further.
type Handle interface {
	Pause()
	Resume()
	Stop()
}

// Synthesizer renders text with a local voice. engines.PiperEngine is the
// production implementation.
type Synthesizer interface {
	Synthesize(ctx context.Context, req engines.PiperRequest) ([]byte, error)
}

// Transcoder turns service audio and voice output into PCM at the player's
// rate. engines.Transcoder is the production implementation.
type Transcoder interface {
	DecodeMP3(ctx context.Context, mp3 []byte, tempo float64) ([]byte, error)
	Resample(ctx context.Context, pcm []byte, fromRate int) ([]byte, error)
}
