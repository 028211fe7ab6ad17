package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/fellowship/internal/playback"
	"github.com/dgnsrekt/fellowship/internal/tts"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change playback settings",
	Long: paragraph(fmt.Sprintf("\nShow the saved playback settings, or change them with flags. A %s picks changes up straight away.",
		keyword("running player"))),
	Example: paragraph("fellowship settings\nfellowship settings --rate 1.05 --crossfade 600\nfellowship settings --backend remote --remote-voice marin"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f, s, err := openSettings()
		if err != nil {
			return err
		}
		changed, err := applySettingsFlags(cmd, s)
		if err != nil {
			return err
		}
		if changed != s {
			if err := f.SaveSettings(changed); err != nil {
				return err
			}
		}
		printSettings(os.Stdout, changed)
		return nil
	},
}

func init() {
	addSettingsFlags(settingsCmd)
}

func addSettingsFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Float64("rate", 0, fmt.Sprintf("speech rate (%.2f to %.2f)", playback.MinRate, playback.MaxRate))
	flags.Int("crossfade", 0, fmt.Sprintf("pause between chapters in ms (%d to %d)", playback.MinCrossfadeMS, playback.MaxCrossfadeMS))
	flags.String("repeat", "", "repeat mode: off, chapter or playlist")
	flags.String("backend", "", "voice backend: local or remote")
	flags.String("voice", "", "piper voice for the local backend")
	flags.String("remote-voice", "", fmt.Sprintf("voice profile for the remote backend %v", tts.RemoteVoices))
}

// applySettingsFlags returns s with every changed flag applied.
func applySettingsFlags(cmd *cobra.Command, s playback.Settings) (playback.Settings, error) {
	flags := cmd.Flags()
	if flags.Changed("rate") {
		rate, _ := flags.GetFloat64("rate")
		s.Rate = playback.ClampRate(rate)
	}
	if flags.Changed("crossfade") {
		ms, _ := flags.GetInt("crossfade")
		s.CrossfadeMS = playback.ClampCrossfade(ms)
	}
	if flags.Changed("repeat") {
		v, _ := flags.GetString("repeat")
		mode, err := playback.ParseRepeatMode(v)
		if err != nil {
			return s, err
		}
		s.Repeat = mode
	}
	if flags.Changed("backend") {
		v, _ := flags.GetString("backend")
		kind, err := tts.ParseKind(v)
		if err != nil {
			return s, err
		}
		s.Backend = kind
	}
	if flags.Changed("voice") {
		s.LocalVoice, _ = flags.GetString("voice")
	}
	if flags.Changed("remote-voice") {
		v, _ := flags.GetString("remote-voice")
		if !tts.IsRemoteVoice(v) {
			return s, fmt.Errorf("unknown remote voice %q (use one of %v)", v, tts.RemoteVoices)
		}
		s.RemoteVoice = v
	}
	return s.Normalize(), nil
}

func printSettings(w io.Writer, s playback.Settings) {
	local := s.LocalVoice
	if local == "" {
		local = faint("default")
	}
	rows := [][2]string{
		{"backend", string(s.Backend)},
		{"rate", fmt.Sprintf("%.2f", s.Rate)},
		{"crossfade", fmt.Sprintf("%dms", s.CrossfadeMS)},
		{"repeat", s.Repeat.String()},
		{"voice", local},
		{"remote voice", s.RemoteVoice},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-13s %s\n", r[0], r[1])
	}
}
