package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/fellowship/internal/playback"
	"github.com/dgnsrekt/fellowship/internal/tts"
)

// Keys of the settings file.
const (
	keyRate        = "rate"
	keyCrossfade   = "crossfade_ms"
	keyLocalVoice  = "local_voice"
	keyRemoteVoice = "remote_voice"
	keyBackend     = "backend"
	keyRepeat      = "repeat"
)

// SettingsFile keeps playback settings in a YAML file. A SettingsFile with
// an empty path keeps nothing.
type SettingsFile struct {
	path   string
	logger *log.Logger

	mu   sync.Mutex
	last *playback.Settings // what the file holds as far as we know
}

// NewSettingsFile creates a settings store at path.
func NewSettingsFile(path string, logger *log.Logger) *SettingsFile {
	if logger == nil {
		logger = log.Default()
	}
	return &SettingsFile{path: path, logger: logger.WithPrefix("settings")}
}

// Path returns the file location.
func (f *SettingsFile) Path() string {
	return f.path
}

// Load reads the settings. A missing file yields the defaults.
func (f *SettingsFile) Load() (playback.Settings, error) {
	if f.path == "" {
		return playback.DefaultSettings(), nil
	}
	s, err := f.read()
	if errors.Is(err, fs.ErrNotExist) {
		return playback.DefaultSettings(), nil
	}
	if err != nil {
		return playback.DefaultSettings(), fmt.Errorf("read %s: %w", f.path, err)
	}
	f.remember(s)
	return s, nil
}

func (f *SettingsFile) read() (playback.Settings, error) {
	def := playback.DefaultSettings()

	v := viper.New()
	v.SetConfigFile(f.path)
	v.SetConfigType("yaml")
	v.SetDefault(keyRate, def.Rate)
	v.SetDefault(keyCrossfade, def.CrossfadeMS)
	v.SetDefault(keyLocalVoice, def.LocalVoice)
	v.SetDefault(keyRemoteVoice, def.RemoteVoice)
	v.SetDefault(keyBackend, string(def.Backend))
	v.SetDefault(keyRepeat, def.Repeat.String())
	if err := v.ReadInConfig(); err != nil {
		return def, err
	}

	s := playback.Settings{
		Rate:        v.GetFloat64(keyRate),
		CrossfadeMS: v.GetInt(keyCrossfade),
		LocalVoice:  strings.TrimSpace(v.GetString(keyLocalVoice)),
		RemoteVoice: strings.ToLower(strings.TrimSpace(v.GetString(keyRemoteVoice))),
	}
	if k, err := tts.ParseKind(v.GetString(keyBackend)); err == nil {
		s.Backend = k
	} else {
		f.logger.Warn("Ignoring backend", "err", err)
	}
	if m, err := playback.ParseRepeatMode(v.GetString(keyRepeat)); err == nil {
		s.Repeat = m
	} else {
		f.logger.Warn("Ignoring repeat mode", "err", err)
	}
	return s.Normalize(), nil
}

// SaveSettings writes s. It implements playback.SettingsStore.
func (f *SettingsFile) SaveSettings(s playback.Settings) error {
	if f.path == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set(keyRate, s.Rate)
	v.Set(keyCrossfade, s.CrossfadeMS)
	v.Set(keyLocalVoice, s.LocalVoice)
	v.Set(keyRemoteVoice, s.RemoteVoice)
	v.Set(keyBackend, string(s.Backend))
	v.Set(keyRepeat, s.Repeat.String())

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	// viper picks the format from the extension, so keep it on the temp file
	ext := filepath.Ext(f.path)
	tmp := strings.TrimSuffix(f.path, ext) + ".tmp" + ext
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := v.WriteConfigAs(tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write settings: %w", err)
	}
	f.last = &s
	return nil
}

func (f *SettingsFile) remember(s playback.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = &s
}

// changed records s and reports whether it differs from the last known
// content of the file.
func (f *SettingsFile) changed(s playback.Settings) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last != nil && *f.last == s {
		return false
	}
	f.last = &s
	return true
}

// Watch calls fn whenever the file is edited by someone else, until ctx is
// done. Our own writes are not reported.
func (f *SettingsFile) Watch(ctx context.Context, fn func(playback.Settings)) error {
	if f.path == "" {
		return nil
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch settings: %w", err)
	}
	f.logger.Debug("Watching settings", "file", f.path)

	target := filepath.Clean(f.path)
	go func() {
		defer w.Close() //nolint:errcheck
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				s, err := f.read()
				if err != nil {
					// editors write in steps; the next event has the whole file
					f.logger.Debug("Settings not readable yet", "err", err)
					continue
				}
				if !f.changed(s) {
					continue
				}
				f.logger.Info("Settings changed on disk", "rate", s.Rate, "backend", s.Backend)
				fn(s)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.logger.Debug("fsnotify error", "dir", dir, "error", err)
			}
		}
	}()
	return nil
}
