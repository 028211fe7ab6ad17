package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# reader service; leave empty to use content.dir and local playlists
api:
  url: ""
  # token: ""
  requests_per_minute: 60

# read chapters from <dir>/<translation>/<Book>/<chapter>.html or .txt
content:
  dir: ""

# AMP or NKJV
translation: "AMP"

tts:
  # starting backend when no settings were saved: local or remote
  backend: "local"
  piper:
    binary: "piper"
    # voices_dir: "~/.local/share/fellowship/voices"
    timeout: "10s"
  remote:
    # cedar, marin, alloy or verse
    voice: "cedar"
    voice_settings_version: "v1"
    # model_version: ""
  ffmpeg:
    binary: "ffmpeg"
  cache:
    # dir: "~/.cache/fellowship/audio"
    memory_mb: 64
    disk_mb: 512
    # zstd level, 0 disables compression
    compression_level: 3

audio:
  volume: 1.0
  # 44100 or 48000
  sample_rate: 44100

# queue, playlists and playback settings live here
# state:
#   dir: "~/.local/share/fellowship"

# glamour style for fellowship read: auto, dark, light, notty or a JSON path
style: "auto"

# log to fellowship.log in the state directory
debug: false
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the fellowship config file",
	Long:    paragraph(fmt.Sprintf("\n%s the fellowship config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("fellowship config\nfellowship config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Fellowship", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
