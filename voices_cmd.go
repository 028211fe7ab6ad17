package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/fellowship/internal/playback"
	"github.com/dgnsrekt/fellowship/internal/tts"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List local and remote voices",
	Long: paragraph(fmt.Sprintf("\nList the piper models installed in the voices directory and the %s the reader service offers. "+
		"Pick one with fellowship settings --voice or --remote-voice.", keyword("remote voice profiles"))),
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		dir, err := voicesDir()
		if err != nil {
			return err
		}
		voices, err := tts.NewVoiceCatalog(dir).Scan()
		if err != nil {
			return err
		}
		_, s, err := openSettings()
		if err != nil {
			return err
		}
		printVoices(os.Stdout, dir, voices, s)
		return nil
	},
}

func printVoices(w io.Writer, dir string, voices []tts.Voice, s playback.Settings) {
	mark := func(on bool) string {
		if on {
			return "*"
		}
		return " "
	}

	fmt.Fprintf(w, "Local voices %s\n", faint(dir))
	if len(voices) == 0 {
		fmt.Fprintln(w, "  none installed; copy piper .onnx models (with their .onnx.json) here")
	}
	var local string
	if v, err := tts.ResolveVoice(voices, s.LocalVoice); err == nil {
		local = v.Name
	}
	width := 0
	for _, v := range voices {
		width = max(width, runewidth.StringWidth(v.Name))
	}
	for _, v := range voices {
		fmt.Fprintf(w, "%s %s  %-6s %s\n", mark(v.Name == local && s.Backend == tts.KindLocal),
			runewidth.FillRight(v.Name, width), v.Locale, faint(fmt.Sprintf("%d Hz", v.SampleRate)))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Remote voices")
	for _, v := range tts.RemoteVoices {
		fmt.Fprintf(w, "%s %s\n", mark(v == s.RemoteVoice && s.Backend == tts.KindRemote), v)
	}
}
