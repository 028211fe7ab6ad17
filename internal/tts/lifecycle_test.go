package tts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgnsrekt/fellowship/internal/audio"
)

// recorder collects events from a handle.
type recorder struct {
	ch chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 16)}
}

func (r *recorder) emit(e Event) {
	r.ch <- e
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return Event{}
}

func (r *recorder) expect(t *testing.T, want EventType) Event {
	t.Helper()
	e := r.next(t)
	if e.Type != want {
		t.Fatalf("event = %v (err %v), want %v", e.Type, e.Err, want)
	}
	return e
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.ch:
		t.Fatalf("unexpected event %v (err %v)", e.Type, e.Err)
	case <-time.After(50 * time.Millisecond):
	}
}

var testPCM = make([]byte, 4410*2)

func renderPCM(context.Context) ([]byte, error) {
	return testPCM, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandle_StartedThenEnded(t *testing.T) {
	player := audio.DefaultMockPlayer()
	rec := newRecorder()

	startHandle(context.Background(), player, renderPCM, rec.emit)

	rec.expect(t, EventStarted)
	if !player.IsPlaying() {
		t.Fatal("expected the player to be playing after EventStarted")
	}
	player.Finish()
	rec.expect(t, EventEnded)
	rec.none(t)
}

func TestHandle_RenderError(t *testing.T) {
	player := audio.DefaultMockPlayer()
	rec := newRecorder()
	boom := errors.New("boom")

	startHandle(context.Background(), player, func(context.Context) ([]byte, error) {
		return nil, boom
	}, rec.emit)

	e := rec.expect(t, EventErrored)
	if !errors.Is(e.Err, boom) {
		t.Errorf("err = %v, want %v", e.Err, boom)
	}
	rec.none(t)
	if player.Metrics().PlayCount != 0 {
		t.Error("nothing should have been played")
	}
}

func TestHandle_PlayError(t *testing.T) {
	player := audio.DefaultMockPlayer()
	player.SetPlayError(errors.New("device gone"))
	rec := newRecorder()

	startHandle(context.Background(), player, renderPCM, rec.emit)

	e := rec.expect(t, EventErrored)
	if !errors.Is(e.Err, &Error{Code: ErrorCodePlayback}) {
		t.Errorf("err = %v, want a playback error", e.Err)
	}
	rec.none(t)
}

func TestHandle_PauseResume(t *testing.T) {
	player := audio.DefaultMockPlayer()
	rec := newRecorder()

	h := startHandle(context.Background(), player, renderPCM, rec.emit)
	rec.expect(t, EventStarted)

	h.Pause()
	rec.expect(t, EventPaused)
	if !player.IsPaused() {
		t.Error("player should be paused")
	}
	h.Pause()
	rec.none(t)

	h.Resume()
	rec.expect(t, EventResumed)
	if !player.IsPlaying() {
		t.Error("player should be playing again")
	}
	h.Resume()
	rec.none(t)

	player.Finish()
	rec.expect(t, EventEnded)

	// terminal: everything is a no-op now
	h.Pause()
	h.Resume()
	h.Stop()
	rec.none(t)
}

func TestHandle_PauseBeforeStart(t *testing.T) {
	player := audio.DefaultMockPlayer()
	rec := newRecorder()
	release := make(chan struct{})

	h := startHandle(context.Background(), player, func(context.Context) ([]byte, error) {
		<-release
		return testPCM, nil
	}, rec.emit)

	h.Pause()
	close(release)
	rec.none(t)
	if n := player.Metrics().PlayCount; n != 0 {
		t.Fatalf("audio started while paused (%d plays)", n)
	}

	h.Resume()
	rec.expect(t, EventStarted)
	player.Finish()
	rec.expect(t, EventEnded)
	rec.none(t)
}

func TestHandle_StopDuringRender(t *testing.T) {
	player := audio.DefaultMockPlayer()
	rec := newRecorder()
	rendering := make(chan struct{})

	h := startHandle(context.Background(), player, func(ctx context.Context) ([]byte, error) {
		close(rendering)
		<-ctx.Done()
		return nil, ctx.Err()
	}, rec.emit)

	<-rendering
	h.Stop()
	h.Stop()
	rec.none(t)
	if player.Metrics().PlayCount != 0 {
		t.Error("nothing should have been played")
	}
}

func TestHandle_StopDuringPlayback(t *testing.T) {
	player := audio.DefaultMockPlayer()
	rec := newRecorder()

	h := startHandle(context.Background(), player, renderPCM, rec.emit)
	rec.expect(t, EventStarted)

	h.Stop()
	if player.IsPlaying() {
		t.Error("Stop should silence the player")
	}
	h.Pause()
	h.Resume()
	rec.none(t)
}

func TestHandle_ReplacedBufferDoesNotStopNewAudio(t *testing.T) {
	player := audio.DefaultMockPlayer()
	first, second := newRecorder(), newRecorder()

	h1 := startHandle(context.Background(), player, renderPCM, first.emit)
	first.expect(t, EventStarted)

	startHandle(context.Background(), player, renderPCM, second.emit)
	second.expect(t, EventStarted)
	first.expect(t, EventEnded)

	h1.Stop()
	if !player.IsPlaying() {
		t.Error("stopping a finished handle must not stop the next utterance")
	}
}

func TestHandle_CancelledContextSilencesAudio(t *testing.T) {
	player := audio.DefaultMockPlayer()
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	startHandle(ctx, player, renderPCM, rec.emit)
	rec.expect(t, EventStarted)

	cancel()
	waitFor(t, "player to stop", func() bool { return !player.IsPlaying() })
	rec.none(t)
}

func TestHandle_NilEmit(t *testing.T) {
	player := audio.DefaultMockPlayer()
	startHandle(context.Background(), player, renderPCM, nil)
	waitFor(t, "playback", player.IsPlaying)
	player.Finish()
}
