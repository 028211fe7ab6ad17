// Package playback turns a queue of chapters into continuous, verse by verse
// speech.
//
// One goroutine owns the queue, the cursor, the settings and the active
// session. Everything else (backend events, timers, content fetches and the
// public methods) hands closures to that goroutine through a mailbox. Every
// playback run gets a fresh session; closures captured by a run check that
// their session is still current before they touch anything.
package playback

import (
	"fmt"
	"strings"
)

// State is the engine's playback state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSpeaking
	StatePaused
	// StateStopped is final: the engine was closed.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Active reports whether a chapter is loading, speaking or paused.
func (s State) Active() bool {
	return s == StateLoading || s == StateSpeaking || s == StatePaused
}

// RepeatMode decides what plays after a chapter's last verse.
type RepeatMode int

const (
	RepeatOff      RepeatMode = iota // stop after the last chapter
	RepeatChapter                    // play the same chapter again
	RepeatPlaylist                   // wrap to the first chapter
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatChapter:
		return "chapter"
	case RepeatPlaylist:
		return "playlist"
	default:
		return "off"
	}
}

// Next cycles off, chapter, playlist.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatChapter
	case RepeatChapter:
		return RepeatPlaylist
	default:
		return RepeatOff
	}
}

// ParseRepeatMode converts a string to a RepeatMode.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return RepeatOff, nil
	case "chapter", "one":
		return RepeatChapter, nil
	case "playlist", "queue", "all":
		return RepeatPlaylist, nil
	default:
		return RepeatOff, fmt.Errorf("unknown repeat mode %q (use off, chapter or playlist)", s)
	}
}

// nextTarget picks the queue index to play after the chapter at index.
func nextTarget(index, length int, repeat RepeatMode) (int, bool) {
	switch {
	case length == 0:
		return 0, false
	case repeat == RepeatChapter && index >= 0 && index < length:
		return index, true
	case index+1 >= 0 && index+1 < length:
		return index + 1, true
	case repeat == RepeatPlaylist:
		return 0, true
	default:
		return 0, false
	}
}
