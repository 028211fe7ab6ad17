package tts

import (
	"context"
	"sync"

	"github.com/dgnsrekt/fellowship/internal/audio"
)

// renderFunc produces the PCM for one utterance at the player's rate.
type renderFunc func(ctx context.Context) ([]byte, error)

// handle runs one utterance for either backend: render, wait out a pause
// requested before audio existed, play, report.
//
// Events are emitted with mu held so that Pause/Resume/Stop and the
// playback goroutine observe one order.
type handle struct {
	mu     sync.Mutex
	emit   func(Event)
	player audio.AudioPlayer
	cancel context.CancelFunc
	wake   chan struct{}

	done     <-chan struct{} // set while this handle owns the player
	started  bool
	paused   bool
	stopped  bool
	terminal bool
}

func startHandle(ctx context.Context, player audio.AudioPlayer, render renderFunc, emit func(Event)) *handle {
	if emit == nil {
		emit = func(Event) {}
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &handle{
		emit:   emit,
		player: player,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
	}
	go h.run(ctx, render)
	return h
}

func (h *handle) run(ctx context.Context, render renderFunc) {
	defer h.cancel()

	pcm, err := render(ctx)
	if err != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.stopped || h.terminal {
			return
		}
		h.terminal = true
		if ctx.Err() == nil {
			h.emit(Event{Type: EventErrored, Err: err})
		}
		return
	}

	h.mu.Lock()
	for h.paused && !h.stopped {
		h.mu.Unlock()
		select {
		case <-h.wake:
		case <-ctx.Done():
		}
		h.mu.Lock()
		if ctx.Err() != nil {
			break
		}
	}
	if h.stopped || h.terminal || ctx.Err() != nil {
		h.terminal = true
		h.mu.Unlock()
		return
	}

	done, err := h.player.Play(pcm)
	if err != nil {
		h.terminal = true
		h.emit(Event{Type: EventErrored, Err: NewError(ErrorCodePlayback, "play audio", err)})
		h.mu.Unlock()
		return
	}
	h.done = done
	h.started = true
	h.emit(Event{Type: EventStarted})
	h.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.terminal {
		return
	}
	h.terminal = true
	if ctx.Err() != nil {
		// abandoned while audible: silence it rather than let it overlap
		h.stopPlayerLocked()
		return
	}
	h.done = nil
	h.emit(Event{Type: EventEnded})
}

// ownsPlayerLocked reports whether the player is still playing this
// handle's buffer. A later Play replaces the buffer and closes done.
func (h *handle) ownsPlayerLocked() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *handle) stopPlayerLocked() {
	if h.ownsPlayerLocked() {
		_ = h.player.Stop()
	}
	h.done = nil
}

// Pause implements Handle.
func (h *handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.terminal || h.paused {
		return
	}
	h.paused = true
	if !h.started {
		return
	}
	if h.ownsPlayerLocked() {
		_ = h.player.Pause()
	}
	h.emit(Event{Type: EventPaused})
}

// Resume implements Handle.
func (h *handle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.terminal || !h.paused {
		return
	}
	h.paused = false
	if !h.started {
		select {
		case h.wake <- struct{}{}:
		default:
		}
		return
	}
	if h.ownsPlayerLocked() {
		_ = h.player.Resume()
	}
	h.emit(Event{Type: EventResumed})
}

// Stop implements Handle.
func (h *handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.terminal {
		return
	}
	h.stopped = true
	h.cancel()
	h.stopPlayerLocked()
}
