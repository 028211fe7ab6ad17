package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayer implements AudioPlayer without producing sound. Buffers finish
// when Finish is called, or after their simulated duration when auto finish
// is enabled.
type MockPlayer struct {
	mu sync.Mutex

	state      atomic.Int32 // PlayerState
	sampleRate int
	volume     float64

	audioData []byte
	duration  time.Duration
	done      chan struct{}
	doneOnce  *sync.Once
	timer     *time.Timer

	autoFinish  bool
	delayFactor float64

	playErr   error
	callbacks MockCallbacks

	playCount   atomic.Int64
	pauseCount  atomic.Int64
	resumeCount atomic.Int64
	stopCount   atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay   func(audio []byte)
	OnPause  func()
	OnResume func()
	OnStop   func()
	OnFinish func()
}

// DefaultMockPlayer creates a mock player at 44.1 kHz.
func DefaultMockPlayer() *MockPlayer {
	mp := &MockPlayer{
		sampleRate:  44100,
		volume:      1.0,
		delayFactor: 1.0,
	}
	mp.state.Store(int32(StateStopped))
	return mp
}

// NewMockPlayer creates a mock player with custom callbacks.
func NewMockPlayer(callbacks MockCallbacks) *MockPlayer {
	mp := DefaultMockPlayer()
	mp.callbacks = callbacks
	return mp
}

// SetAutoFinish makes buffers end by themselves after their duration scaled
// by factor. 0.1 plays ten times faster.
func (mp *MockPlayer) SetAutoFinish(enabled bool, factor float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.autoFinish = enabled
	if factor > 0 {
		mp.delayFactor = factor
	}
}

// SetPlayError makes the next calls to Play fail with err.
func (mp *MockPlayer) SetPlayError(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.playErr = err
}

// SampleRate implements AudioPlayer.
func (mp *MockPlayer) SampleRate() int {
	return mp.sampleRate
}

// Play implements AudioPlayer.
func (mp *MockPlayer) Play(audio []byte) (<-chan struct{}, error) {
	mp.mu.Lock()

	if mp.State() == StateClosed {
		mp.mu.Unlock()
		return nil, ErrClosed
	}
	if len(audio) == 0 {
		mp.mu.Unlock()
		return nil, errors.New("audio data is empty")
	}
	if mp.playErr != nil {
		err := mp.playErr
		mp.mu.Unlock()
		return nil, err
	}
	mp.stopLocked()

	mp.audioData = make([]byte, len(audio))
	copy(mp.audioData, audio)
	mp.duration = PCMDuration(len(audio), mp.sampleRate, 1)

	done := make(chan struct{})
	once := new(sync.Once)
	mp.done, mp.doneOnce = done, once
	mp.state.Store(int32(StatePlaying))
	mp.playCount.Add(1)

	if mp.autoFinish {
		d := time.Duration(float64(mp.duration) * mp.delayFactor)
		mp.timer = time.AfterFunc(d, func() { mp.finish(done) })
	}
	cb := mp.callbacks.OnPlay
	mp.mu.Unlock()

	if cb != nil {
		cb(audio)
	}
	return done, nil
}

// Finish ends the current buffer as if the device drained it.
func (mp *MockPlayer) Finish() {
	mp.mu.Lock()
	done := mp.done
	mp.mu.Unlock()
	if done != nil {
		mp.finish(done)
	}
}

func (mp *MockPlayer) finish(done chan struct{}) {
	mp.mu.Lock()
	if mp.done != done {
		mp.mu.Unlock()
		return
	}
	once := mp.doneOnce
	mp.done, mp.doneOnce = nil, nil
	mp.audioData = nil
	mp.state.Store(int32(StateStopped))
	cb := mp.callbacks.OnFinish
	mp.mu.Unlock()

	once.Do(func() { close(done) })
	if cb != nil {
		cb()
	}
}

// Pause implements AudioPlayer.
func (mp *MockPlayer) Pause() error {
	mp.mu.Lock()
	if st := mp.State(); st != StatePlaying {
		mp.mu.Unlock()
		return fmt.Errorf("cannot pause: player is %s", st)
	}
	if mp.timer != nil {
		mp.timer.Stop()
	}
	mp.state.Store(int32(StatePaused))
	mp.pauseCount.Add(1)
	cb := mp.callbacks.OnPause
	mp.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

// Resume implements AudioPlayer.
func (mp *MockPlayer) Resume() error {
	mp.mu.Lock()
	if st := mp.State(); st != StatePaused {
		mp.mu.Unlock()
		return fmt.Errorf("cannot resume: player is %s", st)
	}
	if mp.autoFinish && mp.timer != nil {
		mp.timer.Reset(time.Duration(float64(mp.duration) * mp.delayFactor))
	}
	mp.state.Store(int32(StatePlaying))
	mp.resumeCount.Add(1)
	cb := mp.callbacks.OnResume
	mp.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

// Stop implements AudioPlayer.
func (mp *MockPlayer) Stop() error {
	mp.mu.Lock()
	stopped := mp.stopLocked()
	cb := mp.callbacks.OnStop
	mp.mu.Unlock()

	if stopped && cb != nil {
		cb()
	}
	return nil
}

func (mp *MockPlayer) stopLocked() bool {
	if st := mp.State(); st == StateStopped || st == StateClosed {
		return false
	}
	if mp.timer != nil {
		mp.timer.Stop()
		mp.timer = nil
	}
	if mp.done != nil {
		done, once := mp.done, mp.doneOnce
		once.Do(func() { close(done) })
	}
	mp.done, mp.doneOnce = nil, nil
	mp.audioData = nil
	mp.state.Store(int32(StateStopped))
	mp.stopCount.Add(1)
	return true
}

// IsPlaying implements AudioPlayer.
func (mp *MockPlayer) IsPlaying() bool {
	return mp.State() == StatePlaying
}

// IsPaused implements AudioPlayer.
func (mp *MockPlayer) IsPaused() bool {
	return mp.State() == StatePaused
}

// State returns the current player state.
func (mp *MockPlayer) State() PlayerState {
	return PlayerState(mp.state.Load())
}

// Position reports zero; the mock has no clock of its own.
func (mp *MockPlayer) Position() time.Duration {
	return 0
}

// SetVolume implements AudioPlayer.
func (mp *MockPlayer) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.volume = volume
	return nil
}

// Volume returns the current volume.
func (mp *MockPlayer) Volume() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.volume
}

// Close implements AudioPlayer.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stopLocked()
	mp.state.Store(int32(StateClosed))
	return nil
}

// AudioData returns a copy of the buffer being played.
func (mp *MockPlayer) AudioData() []byte {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.audioData == nil {
		return nil
	}
	data := make([]byte, len(mp.audioData))
	copy(data, mp.audioData)
	return data
}

// Duration returns the simulated duration of the current buffer.
func (mp *MockPlayer) Duration() time.Duration {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.duration
}

// MockPlayerMetrics contains playback metrics for testing.
type MockPlayerMetrics struct {
	PlayCount   int64
	PauseCount  int64
	ResumeCount int64
	StopCount   int64
}

// Metrics returns playback metrics for testing.
func (mp *MockPlayer) Metrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		PlayCount:   mp.playCount.Load(),
		PauseCount:  mp.pauseCount.Load(),
		ResumeCount: mp.resumeCount.Load(),
		StopCount:   mp.stopCount.Load(),
	}
}

var _ AudioPlayer = (*MockPlayer)(nil)
