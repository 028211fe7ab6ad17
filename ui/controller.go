package ui

import (
	"github.com/dgnsrekt/fellowship/internal/playback"
	"github.com/dgnsrekt/fellowship/internal/tts"
)

// Controller is the part of the playback engine the mini-player drives.
type Controller interface {
	Subscribe() (<-chan playback.Snapshot, func())
	Snapshot() playback.Snapshot

	TogglePause() error
	PlayNext() error
	PlayPrevious() error
	PlayFromIndex(i int) error
	Stop() error

	SetRate(rate float64) error
	SetCrossfade(ms int) error
	SetRepeatMode(m playback.RepeatMode) error
	SetBackend(k tts.Kind) error
	SetLocalVoice(name string) error
	SetRemoteVoice(name string) error

	RemoveFromQueue(id string) error
	MoveItem(from, to int) error
}

var _ Controller = (*playback.Engine)(nil)
