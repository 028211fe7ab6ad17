package audio

import "time"

// PlayerState represents the current state of a player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// AudioPlayer is the output device the speech backends play through.
type AudioPlayer interface {
	// Play replaces any current buffer and starts it. The returned channel is
	// closed when the buffer finished or was stopped.
	Play(pcm []byte) (<-chan struct{}, error)
	Pause() error
	Resume() error
	Stop() error
	IsPlaying() bool
	IsPaused() bool
	SetVolume(volume float64) error
	Position() time.Duration
	SampleRate() int
	Close() error
}

// PCMDuration is the playing time of 16-bit PCM data.
func PCMDuration(size, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := size / (channels * 2)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
