package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/fellowship/internal/api"
	"github.com/dgnsrekt/fellowship/internal/audio"
	"github.com/dgnsrekt/fellowship/internal/cache"
	"github.com/dgnsrekt/fellowship/internal/scripture"
)

const (
	// VersePath is the service route that renders one verse.
	VersePath = "/api/tts/verse"

	DefaultRemoteVoice          = "cedar"
	DefaultVoiceSettingsVersion = "v1"
	DefaultModelVersion         = "gpt-4o-mini-tts-2025-12-15"

	// provider chain the service hashes into its own cache key
	remoteProvider = "openai-elevenlabs"

	maxAudioSize = 16 * 1024 * 1024
)

// RemoteVoices are the voice profiles the service offers.
var RemoteVoices = []string{"cedar", "marin", "alloy", "verse"}

// IsRemoteVoice reports whether name is a known voice profile.
func IsRemoteVoice(name string) bool {
	for _, v := range RemoteVoices {
		if v == name {
			return true
		}
	}
	return false
}

// AudioCache stores rendered MP3s. *cache.Manager implements it.
type AudioCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// RemoteConfig wires the remote backend.
type RemoteConfig struct {
	Client     *api.Client
	Cache      AudioCache // optional
	Transcoder Transcoder
	Player     audio.AudioPlayer
	Logger     *log.Logger

	VoiceSettingsVersion string
	ModelVersion         string
}

// RemoteBackend speaks with audio rendered by the reader's web service.
type RemoteBackend struct {
	client     *api.Client
	cache      AudioCache
	transcoder Transcoder
	player     audio.AudioPlayer
	logger     *log.Logger

	settingsVersion string
	modelVersion    string
}

// NewRemoteBackend creates the remote backend.
func NewRemoteBackend(cfg RemoteConfig) (*RemoteBackend, error) {
	if cfg.Client == nil || cfg.Transcoder == nil || cfg.Player == nil {
		return nil, errors.New("remote backend needs a client, a transcoder and a player")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.VoiceSettingsVersion == "" {
		cfg.VoiceSettingsVersion = DefaultVoiceSettingsVersion
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = DefaultModelVersion
	}
	return &RemoteBackend{
		client:          cfg.Client,
		cache:           cfg.Cache,
		transcoder:      cfg.Transcoder,
		player:          cfg.Player,
		logger:          cfg.Logger.WithPrefix("remote"),
		settingsVersion: cfg.VoiceSettingsVersion,
		modelVersion:    cfg.ModelVersion,
	}, nil
}

// Kind implements Backend.
func (b *RemoteBackend) Kind() Kind {
	return KindRemote
}

// Speak implements Backend. Cancelling ctx aborts the request in flight.
func (b *RemoteBackend) Speak(ctx context.Context, u Utterance, emit func(Event)) (Handle, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return startHandle(ctx, b.player, func(ctx context.Context) ([]byte, error) {
		return b.render(ctx, u)
	}, emit), nil
}

type verseRequest struct {
	Text                 string `json:"text"`
	Translation          string `json:"translation"`
	VoiceProfile         string `json:"voiceProfile"`
	VoiceSettingsVersion string `json:"voiceSettingsVersion"`
	ModelVersion         string `json:"modelVersion"`
	CacheKey             string `json:"cacheKey"`
}

type verseResponse struct {
	Status      string `json:"status"` // cached or generated
	Hash        string `json:"hash"`
	RedirectURL string `json:"redirectUrl"`
	Error       string `json:"error"`
}

func (b *RemoteBackend) request(u Utterance) verseRequest {
	req := verseRequest{
		Text:                 u.Text,
		Translation:          u.Translation,
		VoiceProfile:         u.Voice,
		VoiceSettingsVersion: b.settingsVersion,
		ModelVersion:         b.modelVersion,
	}
	if req.Translation == "" {
		req.Translation = scripture.DefaultTranslation
	}
	if !IsRemoteVoice(req.VoiceProfile) {
		req.VoiceProfile = DefaultRemoteVoice
	}
	req.CacheKey = cache.Key(req.Text, req.Translation, req.VoiceProfile,
		req.VoiceSettingsVersion, remoteProvider, req.ModelVersion)
	return req
}

func (b *RemoteBackend) render(ctx context.Context, u Utterance) ([]byte, error) {
	req := b.request(u)

	mp3, ok := b.cached(req.CacheKey)
	if !ok {
		var err error
		mp3, err = b.download(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if b.cache != nil {
			if err := b.cache.Put(req.CacheKey, mp3); err != nil {
				b.logger.Debug("Audio not cached", "err", err)
			}
		}
	}

	pcm, err := b.transcoder.DecodeMP3(ctx, mp3, u.Rate)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewError(ErrorCodeDecode, "decode audio", err)
	}
	return pcm, nil
}

func (b *RemoteBackend) cached(key string) ([]byte, bool) {
	if b.cache == nil {
		return nil, false
	}
	return b.cache.Get(key)
}

func (b *RemoteBackend) download(ctx context.Context, req verseRequest) ([]byte, error) {
	var resp verseResponse
	if err := b.client.DoJSON(ctx, http.MethodPost, VersePath, req, &resp); err != nil {
		if api.StatusCode(err) != 0 {
			return nil, NewError(ErrorCodeStatus, "render verse", err)
		}
		return nil, NewError(ErrorCodeNetwork, "render verse", err)
	}
	if resp.RedirectURL == "" {
		msg := resp.Error
		if msg == "" {
			msg = "no audio reference in response"
		}
		return nil, NewError(ErrorCodeStatus, msg, nil)
	}
	b.logger.Debug("Verse audio ready", "status", resp.Status, "hash", resp.Hash)
	return b.fetch(ctx, resp.RedirectURL)
}

func (b *RemoteBackend) fetch(ctx context.Context, ref string) ([]byte, error) {
	target, err := b.client.Resolve(ref)
	if err != nil {
		return nil, NewError(ErrorCodeStatus, "audio reference", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, NewError(ErrorCodeNetwork, "create audio request", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, NewError(ErrorCodeNetwork, "fetch audio", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewError(ErrorCodeStatus, "fetch audio",
			&api.StatusError{Status: resp.StatusCode})
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize+1))
	if err != nil {
		return nil, NewError(ErrorCodeNetwork, "read audio", err)
	}
	if len(data) > maxAudioSize {
		return nil, NewError(ErrorCodeDecode, fmt.Sprintf("audio larger than %d bytes", maxAudioSize), nil)
	}
	if len(data) == 0 {
		return nil, NewError(ErrorCodeDecode, "empty audio", nil)
	}
	return data, nil
}
