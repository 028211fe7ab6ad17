// Package main provides the entry point for the fellowship CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/fellowship/internal/cache"
	"github.com/dgnsrekt/fellowship/internal/scripture"
	"github.com/dgnsrekt/fellowship/internal/tts"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	closeLog   = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "fellowship",
		Short: "Listen to scripture, chapter after chapter",
		Long: paragraph(
			fmt.Sprintf("\nListen to scripture %s, with a queue, playlists and speech you can tune while it plays.", keyword("verse by verse")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOptions(cmd); err != nil {
				return err
			}
			closer, err := setupLog()
			if err != nil {
				return err
			}
			closeLog = closer
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlay(cmd.Context(), nil, playOptions{idle: true})
		},
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config %s: %w", configFile, err)
		}
	}

	if _, err := scripture.ParseTranslation(viper.GetString("translation")); err != nil {
		return err
	}
	if b := viper.GetString("tts.backend"); b != "" {
		if _, err := tts.ParseKind(b); err != nil {
			return err
		}
	}
	if v := viper.GetString("tts.remote.voice"); !tts.IsRemoteVoice(v) {
		return fmt.Errorf("unknown remote voice %q (use one of %v)", v, tts.RemoteVoices)
	}
	if rate := viper.GetInt("audio.sample_rate"); rate != 44100 && rate != 48000 {
		return fmt.Errorf("audio sample_rate must be 44100 or 48000, got %d", rate)
	}
	if vol := viper.GetFloat64("audio.volume"); vol < 0 || vol > 2 {
		return fmt.Errorf("audio volume must be between 0 and 2, got %.2f", vol)
	}
	if lvl := viper.GetInt("tts.cache.compression_level"); lvl < 0 || lvl > 4 {
		return fmt.Errorf("cache compression_level must be between 0 and 4, got %d", lvl)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().String("api-url", "", "reader service URL")
	rootCmd.PersistentFlags().String("content-dir", "", "read chapters from a local directory")
	rootCmd.PersistentFlags().String("translation", scripture.DefaultTranslation, "translation for new chapters (AMP or NKJV)")
	rootCmd.PersistentFlags().Bool("debug", false, "log to a file in the state directory")

	// Config bindings
	_ = viper.BindPFlag("api.url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("content.dir", rootCmd.PersistentFlags().Lookup("content-dir"))
	_ = viper.BindPFlag("translation", rootCmd.PersistentFlags().Lookup("translation"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	def := cache.DefaultConfig()
	viper.SetDefault("api.url", "")
	viper.SetDefault("api.token", "")
	viper.SetDefault("api.requests_per_minute", 60)
	viper.SetDefault("content.dir", "")
	viper.SetDefault("translation", scripture.DefaultTranslation)
	viper.SetDefault("tts.backend", "")
	viper.SetDefault("tts.piper.binary", "piper")
	viper.SetDefault("tts.piper.voices_dir", "")
	viper.SetDefault("tts.piper.timeout", 10*time.Second)
	viper.SetDefault("tts.remote.voice", tts.DefaultRemoteVoice)
	viper.SetDefault("tts.remote.voice_settings_version", tts.DefaultVoiceSettingsVersion)
	viper.SetDefault("tts.remote.model_version", tts.DefaultModelVersion)
	viper.SetDefault("tts.ffmpeg.binary", "ffmpeg")
	viper.SetDefault("tts.cache.dir", "")
	viper.SetDefault("tts.cache.memory_mb", def.MemoryCapacity>>20)
	viper.SetDefault("tts.cache.disk_mb", def.DiskCapacity>>20)
	viper.SetDefault("tts.cache.compression_level", def.CompressionLevel)
	viper.SetDefault("audio.volume", 1.0)
	viper.SetDefault("audio.sample_rate", 44100)
	viper.SetDefault("state.dir", "")
	viper.SetDefault("debug", false)

	rootCmd.AddCommand(
		playCmd,
		queueCmd,
		playlistCmd,
		readCmd,
		voicesCmd,
		settingsCmd,
		cacheCmd,
		configCmd,
		manCmd,
	)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "fellowship")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "fellowship")}, dirs...)
	}

	if c := os.Getenv("FELLOWSHIP_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("fellowship")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("fellowship")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "fellowship.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
