package playback

import (
	"math"
	"time"

	"github.com/dgnsrekt/fellowship/internal/tts"
)

// Limits for the user adjustable settings.
const (
	MinRate = 0.85
	MaxRate = 1.2

	MinCrossfadeMS = 100
	MaxCrossfadeMS = 1500
)

// lastVerseSlowdown eases the final verse of a chapter.
const lastVerseSlowdown = 0.05

// Settings are the listener's playback preferences.
type Settings struct {
	Rate        float64
	CrossfadeMS int
	LocalVoice  string // piper voice name, empty for the default
	RemoteVoice string // service voice profile
	Backend     tts.Kind
	Repeat      RepeatMode
}

// DefaultSettings returns the settings used when nothing was saved.
func DefaultSettings() Settings {
	return Settings{
		Rate:        0.95,
		CrossfadeMS: 400,
		RemoteVoice: tts.DefaultRemoteVoice,
		Backend:     tts.KindLocal,
		Repeat:      RepeatOff,
	}
}

// Normalize clamps every field into range. Unset or unknown values take
// their defaults.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()

	if s.Rate == 0 || math.IsNaN(s.Rate) {
		s.Rate = def.Rate
	}
	s.Rate = ClampRate(s.Rate)

	if s.CrossfadeMS == 0 {
		s.CrossfadeMS = def.CrossfadeMS
	}
	s.CrossfadeMS = ClampCrossfade(s.CrossfadeMS)

	if s.Backend != tts.KindLocal && s.Backend != tts.KindRemote {
		s.Backend = def.Backend
	}
	if !tts.IsRemoteVoice(s.RemoteVoice) {
		s.RemoteVoice = def.RemoteVoice
	}
	if s.Repeat < RepeatOff || s.Repeat > RepeatPlaylist {
		s.Repeat = def.Repeat
	}
	return s
}

// ClampRate limits a speech rate to [MinRate, MaxRate], two decimals.
func ClampRate(rate float64) float64 {
	if math.IsNaN(rate) {
		return DefaultSettings().Rate
	}
	rate = math.Min(MaxRate, math.Max(MinRate, rate))
	return math.Round(rate*100) / 100
}

// ClampCrossfade limits a crossfade to [MinCrossfadeMS, MaxCrossfadeMS].
func ClampCrossfade(ms int) int {
	return min(MaxCrossfadeMS, max(MinCrossfadeMS, ms))
}

// Crossfade returns the pause between chapters.
func (s Settings) Crossfade() time.Duration {
	return time.Duration(s.CrossfadeMS) * time.Millisecond
}

// Voice returns the voice for the active backend.
func (s Settings) Voice() string {
	if s.Backend == tts.KindRemote {
		return s.RemoteVoice
	}
	return s.LocalVoice
}

// verseRate is the rate for a verse; the last one of a chapter is a little
// slower.
func (s Settings) verseRate(last bool) float64 {
	if !last {
		return s.Rate
	}
	return math.Max(MinRate, math.Round((s.Rate-lastVerseSlowdown)*100)/100)
}
