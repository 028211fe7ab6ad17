package tts

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/fellowship/internal/audio"
	"github.com/dgnsrekt/fellowship/internal/tts/engines"
)

// LocalConfig wires the local backend.
type LocalConfig struct {
	Voices      *VoiceCatalog
	Synthesizer Synthesizer
	Transcoder  Transcoder
	Player      audio.AudioPlayer
	Logger      *log.Logger
}

// LocalBackend speaks with piper voices installed on this machine.
type LocalBackend struct {
	voices     *VoiceCatalog
	synth      Synthesizer
	transcoder Transcoder
	player     audio.AudioPlayer
	logger     *log.Logger
}

// NewLocalBackend creates the local backend.
func NewLocalBackend(cfg LocalConfig) (*LocalBackend, error) {
	if cfg.Voices == nil || cfg.Synthesizer == nil || cfg.Transcoder == nil || cfg.Player == nil {
		return nil, errors.New("local backend needs voices, a synthesizer, a transcoder and a player")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &LocalBackend{
		voices:     cfg.Voices,
		synth:      cfg.Synthesizer,
		transcoder: cfg.Transcoder,
		player:     cfg.Player,
		logger:     cfg.Logger.WithPrefix("local"),
	}, nil
}

// Kind implements Backend.
func (b *LocalBackend) Kind() Kind {
	return KindLocal
}

// Voices lists the installed voices.
func (b *LocalBackend) Voices() ([]Voice, error) {
	return b.voices.Scan()
}

// Speak implements Backend.
func (b *LocalBackend) Speak(ctx context.Context, u Utterance, emit func(Event)) (Handle, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return startHandle(ctx, b.player, func(ctx context.Context) ([]byte, error) {
		return b.render(ctx, u)
	}, emit), nil
}

func (b *LocalBackend) render(ctx context.Context, u Utterance) ([]byte, error) {
	voices, err := b.voices.Scan()
	if err != nil {
		return nil, NewError(ErrorCodeNoVoice, "scan voices", err)
	}
	v, err := ResolveVoice(voices, u.Voice)
	if err != nil {
		return nil, NewError(ErrorCodeNoVoice, "resolve voice", err)
	}
	if u.Voice != "" && v.Name != u.Voice {
		b.logger.Debug("Voice unavailable, falling back", "wanted", u.Voice, "using", v.Name)
	}

	pcm, err := b.synth.Synthesize(ctx, engines.PiperRequest{
		Text:   u.Text,
		Model:  v.Model,
		Config: v.Config,
		Rate:   u.Rate,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewError(ErrorCodeSynthesis, "piper "+v.Name, err)
	}

	pcm, err = b.transcoder.Resample(ctx, pcm, v.SampleRate)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewError(ErrorCodeDecode, "resample", err)
	}
	return pcm, nil
}
