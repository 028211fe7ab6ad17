package audio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// ErrClosed is returned by a player after Close.
var ErrClosed = errors.New("player is closed")

// pollInterval is how often the completion watcher checks the device.
const pollInterval = 20 * time.Millisecond

// Player plays PCM buffers through an oto context.
type Player struct {
	context *oto.Context
	config  PlayerConfig

	mu      sync.Mutex
	current *stream

	state  atomic.Int32  // PlayerState
	volume atomic.Uint64 // float64 bits
}

// stream is one buffer handed to the device. The data slice must outlive
// the oto player reading from it.
type stream struct {
	data     []byte
	player   *oto.Player
	duration time.Duration

	started  time.Time
	pausedAt time.Duration
	paused   time.Duration // accumulated
	isPaused bool

	done     chan struct{}
	doneOnce sync.Once
}

func (s *stream) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *stream) position() time.Duration {
	var pos time.Duration
	if s.isPaused {
		pos = s.pausedAt
	} else {
		pos = time.Since(s.started) - s.paused
	}
	return min(pos, s.duration)
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int // 44100 or 48000 Hz only
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // 16 bits per sample
	BufferSize int // device buffer in bytes
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 44100,
		Channels:   1,
		BitDepth:   16,
		BufferSize: 4096,
	}
}

// NewPlayer opens the output device. oto allows one context per process.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(config.BufferSize) * time.Second / time.Duration(config.SampleRate*config.Channels*2),
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	p := &Player{context: ctx, config: config}
	p.state.Store(int32(StateStopped))
	_ = p.SetVolume(1.0)
	return p, nil
}

func validateConfig(config PlayerConfig) error {
	// oto only handles these rates reliably
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	if config.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", config.BitDepth)
	}
	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	return nil
}

// SampleRate returns the rate PCM handed to Play must use.
func (p *Player) SampleRate() int {
	return p.config.SampleRate
}

// Play implements AudioPlayer.
func (p *Player) Play(pcm []byte) (<-chan struct{}, error) {
	if len(pcm) == 0 {
		return nil, errors.New("audio data is empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == StateClosed {
		return nil, ErrClosed
	}
	p.stopLocked()

	data := make([]byte, len(pcm))
	copy(data, pcm)

	s := &stream{
		data:     data,
		duration: PCMDuration(len(data), p.config.SampleRate, p.config.Channels),
		done:     make(chan struct{}),
	}
	s.player = p.context.NewPlayer(bytes.NewReader(s.data))
	if s.player == nil {
		return nil, errors.New("failed to create oto player")
	}
	s.player.SetVolume(p.getVolume())
	s.started = time.Now()
	s.player.Play()

	p.current = s
	p.state.Store(int32(StatePlaying))

	go p.watch(s)
	return s.done, nil
}

// watch closes the stream's done channel once the device drained it.
func (p *Player) watch(s *stream) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.current != s {
			p.mu.Unlock()
			s.finish()
			return
		}
		if !s.isPaused && !s.player.IsPlaying() {
			p.releaseLocked()
			p.state.Store(int32(StateStopped))
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

// Pause pauses the current buffer.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st := p.State(); st != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", st)
	}
	s := p.current
	s.player.Pause()
	s.pausedAt = s.position()
	s.isPaused = true
	p.state.Store(int32(StatePaused))
	return nil
}

// Resume continues a paused buffer.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st := p.State(); st != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", st)
	}
	s := p.current
	s.paused = time.Since(s.started) - s.pausedAt
	s.isPaused = false
	s.player.Play()
	p.state.Store(int32(StatePlaying))
	return nil
}

// Stop halts playback and closes the done channel of the current buffer.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	if st := p.State(); st == StateStopped || st == StateClosed {
		return
	}
	if p.current != nil {
		p.current.player.Pause()
	}
	p.releaseLocked()
	p.state.Store(int32(StateStopped))
}

func (p *Player) releaseLocked() {
	s := p.current
	if s == nil {
		return
	}
	_ = s.player.Close()
	s.data = nil
	p.current = nil
	s.finish()
}

// IsPlaying reports whether a buffer is audible.
func (p *Player) IsPlaying() bool {
	return p.State() == StatePlaying
}

// IsPaused reports whether a buffer is paused.
func (p *Player) IsPaused() bool {
	return p.State() == StatePaused
}

// State returns the current player state.
func (p *Player) State() PlayerState {
	return PlayerState(p.state.Load())
}

// Position returns the playing time of the current buffer.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return 0
	}
	return p.current.position()
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	p.volume.Store(math.Float64bits(volume))

	p.mu.Lock()
	if p.current != nil {
		p.current.player.SetVolume(volume)
	}
	p.mu.Unlock()
	return nil
}

// Volume returns the current volume.
func (p *Player) Volume() float64 {
	return p.getVolume()
}

func (p *Player) getVolume() float64 {
	return math.Float64frombits(p.volume.Load())
}

// Close stops playback. The oto context lives until the process exits.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.state.Store(int32(StateClosed))
	return nil
}

var _ AudioPlayer = (*Player)(nil)
