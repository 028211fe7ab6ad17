package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/fellowship/internal/api"
	"github.com/dgnsrekt/fellowship/internal/audio"
	"github.com/dgnsrekt/fellowship/internal/cache"
	"github.com/dgnsrekt/fellowship/internal/content"
	"github.com/dgnsrekt/fellowship/internal/playback"
	"github.com/dgnsrekt/fellowship/internal/queue"
	"github.com/dgnsrekt/fellowship/internal/store"
	"github.com/dgnsrekt/fellowship/internal/tts"
	"github.com/dgnsrekt/fellowship/internal/tts/engines"
	"github.com/dgnsrekt/fellowship/ui"
)

// errNoContent means neither the reader service nor a local directory is
// configured.
var errNoContent = errors.New("no chapter source: set api.url or content.dir (see fellowship config)")

var envKeyReplacer = strings.NewReplacer(".", "_")

const (
	queueFileName    = "queue.yml"
	settingsFileName = "settings.yml"
	playlistFileName = "playlists.yml"
)

// expandPath expands ~ and environment variables.
func expandPath(p string) string {
	if p == "" {
		return ""
	}
	if expanded, err := homedir.Expand(os.ExpandEnv(p)); err == nil {
		return expanded
	}
	return p
}

// stateDir holds the queue, settings, playlists and log.
func stateDir() (string, error) {
	if dir := expandPath(viper.GetString("state.dir")); dir != "" {
		return dir, nil
	}
	dirs, err := gap.NewScope(gap.User, "fellowship").DataDirs()
	if err != nil || len(dirs) == 0 {
		return "", fmt.Errorf("unable to find a data directory: %w", err)
	}
	return dirs[0], nil
}

func statePath(name string) (string, error) {
	dir, err := stateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func voicesDir() (string, error) {
	if dir := expandPath(viper.GetString("tts.piper.voices_dir")); dir != "" {
		return dir, nil
	}
	dir, err := stateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voices"), nil
}

func cacheDir() (string, error) {
	if dir := expandPath(viper.GetString("tts.cache.dir")); dir != "" {
		return dir, nil
	}
	dir, err := gap.NewScope(gap.User, "fellowship").CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find a cache directory: %w", err)
	}
	return filepath.Join(dir, "audio"), nil
}

func uiConfig() (ui.Config, error) {
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// newClient returns nil when no service is configured.
func newClient() (*api.Client, error) {
	base := strings.TrimSpace(viper.GetString("api.url"))
	if base == "" {
		return nil, nil
	}
	token := viper.GetString("api.token")
	if token == "" {
		cfg, err := uiConfig()
		if err != nil {
			return nil, err
		}
		token = cfg.APIToken
	}
	c, err := api.NewClient(api.Config{
		BaseURL:           base,
		Token:             token,
		RequestsPerMinute: viper.GetInt("api.requests_per_minute"),
	})
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	log.Debug("Using reader service", "url", c.BaseURL())
	return c, nil
}

func newContent(client *api.Client) (content.Provider, error) {
	if dir := expandPath(viper.GetString("content.dir")); dir != "" {
		log.Debug("Reading chapters from directory", "dir", dir)
		return content.NewDirProvider(dir), nil
	}
	if client != nil {
		return content.NewHTTPProvider(client), nil
	}
	return nil, errNoContent
}

// playlistStore is what the playlist commands need on top of playback.
type playlistStore interface {
	playback.Playlists
	Rename(ctx context.Context, id, name string) error
}

func openPlaylists(client *api.Client) (playlistStore, error) {
	if client != nil {
		return store.NewPlaylistClient(client), nil
	}
	path, err := statePath(playlistFileName)
	if err != nil {
		return nil, err
	}
	lists, err := store.OpenPlaylistFile(path)
	if err != nil {
		return nil, err
	}
	return lists, nil
}

func openQueue() (*store.QueueFile, error) {
	path, err := statePath(queueFileName)
	if err != nil {
		return nil, err
	}
	return store.NewQueueFile(path), nil
}

// openSettings returns the settings store and what it holds. Before the
// first save the config file picks the backend and remote voice.
func openSettings() (*store.SettingsFile, playback.Settings, error) {
	path, err := statePath(settingsFileName)
	if err != nil {
		return nil, playback.Settings{}, err
	}
	f := store.NewSettingsFile(path, log.Default())

	_, statErr := os.Stat(path)
	s, err := f.Load()
	if err != nil {
		log.Warn("Using default playback settings", "err", err)
	}
	if errors.Is(statErr, fs.ErrNotExist) {
		if k, err := tts.ParseKind(viper.GetString("tts.backend")); err == nil && viper.GetString("tts.backend") != "" {
			s.Backend = k
		}
		s.RemoteVoice = viper.GetString("tts.remote.voice")
		s = s.Normalize()
	}
	return f, s, nil
}

func openCache() (*cache.Manager, error) {
	dir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	cfg := cache.DefaultConfig()
	cfg.Dir = dir
	cfg.MemoryCapacity = viper.GetInt64("tts.cache.memory_mb") << 20
	cfg.DiskCapacity = viper.GetInt64("tts.cache.disk_mb") << 20
	cfg.CompressionLevel = viper.GetInt("tts.cache.compression_level")
	m, err := cache.NewManager(cfg, log.Default())
	if err != nil {
		return nil, fmt.Errorf("open audio cache: %w", err)
	}
	return m, nil
}

// player owns everything a playing engine needs.
type player struct {
	engine   *playback.Engine
	settings *store.SettingsFile
	voices   *tts.VoiceCatalog
	cache    *cache.Manager
	device   *audio.Player
}

func newPlayer() (*player, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	provider, err := newContent(client)
	if err != nil {
		return nil, err
	}
	queues, err := openQueue()
	if err != nil {
		return nil, err
	}
	items, index, err := queues.Load()
	if err != nil {
		log.Warn("Starting with an empty queue", "err", err)
		items, index = nil, 0
	}
	settings, current, err := openSettings()
	if err != nil {
		return nil, err
	}
	lists, err := openPlaylists(client)
	if err != nil {
		return nil, err
	}

	p := &player{settings: settings}
	ok := false
	defer func() {
		if !ok {
			p.Close()
		}
	}()

	cfg := audio.DefaultPlayerConfig()
	cfg.SampleRate = viper.GetInt("audio.sample_rate")
	if p.device, err = audio.NewPlayer(cfg); err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	if err := p.device.SetVolume(viper.GetFloat64("audio.volume")); err != nil {
		return nil, err
	}

	transcoder := engines.NewTranscoder(engines.TranscoderConfig{
		Binary:     viper.GetString("tts.ffmpeg.binary"),
		SampleRate: cfg.SampleRate,
	})
	if err := engines.Available(viper.GetString("tts.ffmpeg.binary")); err != nil {
		log.Warn("Speech needs ffmpeg", "err", err)
	}

	dir, err := voicesDir()
	if err != nil {
		return nil, err
	}
	p.voices = tts.NewVoiceCatalog(dir)
	piper := engines.NewPiperEngine(engines.PiperConfig{
		Binary:  viper.GetString("tts.piper.binary"),
		Timeout: viper.GetDuration("tts.piper.timeout"),
	})
	if err := engines.Available(piper.Binary()); err != nil {
		log.Warn("Local voices need piper", "err", err)
	}
	local, err := tts.NewLocalBackend(tts.LocalConfig{
		Voices:      p.voices,
		Synthesizer: piper,
		Transcoder:  transcoder,
		Player:      p.device,
		Logger:      log.Default(),
	})
	if err != nil {
		return nil, err
	}
	backends := []tts.Backend{local}

	if client != nil {
		if p.cache, err = openCache(); err != nil {
			return nil, err
		}
		remote, err := tts.NewRemoteBackend(tts.RemoteConfig{
			Client:               client,
			Cache:                p.cache,
			Transcoder:           transcoder,
			Player:               p.device,
			Logger:               log.Default(),
			VoiceSettingsVersion: viper.GetString("tts.remote.voice_settings_version"),
			ModelVersion:         viper.GetString("tts.remote.model_version"),
		})
		if err != nil {
			return nil, err
		}
		backends = append(backends, remote)
	}

	p.engine, err = playback.NewEngine(playback.Config{
		Content:       provider,
		Backends:      backends,
		Playlists:     lists,
		QueueStore:    queues,
		SettingsStore: settings,
		Settings:      current,
		Queue:         items,
		Index:         index,
		Logger:        log.Default(),
	})
	if err != nil {
		return nil, err
	}
	ok = true
	return p, nil
}

// localVoiceNames lists installed piper voices for the mini-player.
func (p *player) localVoiceNames() []string {
	voices, err := p.voices.Scan()
	if err != nil {
		log.Warn("Unable to list voices", "dir", p.voices.Dir(), "err", err)
		return nil
	}
	names := make([]string, 0, len(voices))
	for _, v := range voices {
		names = append(names, v.Name)
	}
	return names
}

// Close stops playback and flushes everything to disk.
func (p *player) Close() {
	if p.engine != nil {
		if err := p.engine.Close(); err != nil && !errors.Is(err, playback.ErrClosed) {
			log.Warn("Closing playback", "err", err)
		}
	}
	if p.cache != nil {
		if err := p.cache.Close(); err != nil {
			log.Warn("Closing audio cache", "err", err)
		}
	}
	if p.device != nil {
		_ = p.device.Close()
	}
}

// loadQueue reads the saved queue for the offline commands.
func loadQueue() (*store.QueueFile, *queue.Queue, error) {
	f, err := openQueue()
	if err != nil {
		return nil, nil, err
	}
	items, index, err := f.Load()
	if err != nil {
		return nil, nil, err
	}
	return f, queue.New(items, index), nil
}

func saveQueue(f *store.QueueFile, q *queue.Queue) error {
	return f.SaveQueue(q.Items(), q.Index())
}
