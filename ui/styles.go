package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgnsrekt/fellowship/internal/playback"
)

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	gray      = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	faint     = lipgloss.AdaptiveColor{Light: "#DDDADA", Dark: "#333333"}
	fuchsia   = lipgloss.Color("#EE6FF8")

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true).
			Render

	titleStyle = lipgloss.NewStyle().Bold(true).Render

	dimStyle = lipgloss.NewStyle().Foreground(gray).Render

	selectedStyle = lipgloss.NewStyle().Foreground(fuchsia).Render

	currentStyle = lipgloss.NewStyle().Foreground(darkGreen).Bold(true).Render

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render
)

func stateColor(s playback.State) lipgloss.TerminalColor {
	switch s {
	case playback.StateSpeaking:
		return darkGreen
	case playback.StatePaused:
		return lipgloss.Color("#D6A800")
	case playback.StateLoading:
		return lipgloss.Color("#00AAFF")
	default:
		return gray
	}
}

func stateIcon(s playback.State) string {
	switch s {
	case playback.StateSpeaking:
		return "▶"
	case playback.StatePaused:
		return "⏸"
	case playback.StateStopped:
		return "◼"
	default:
		return "■"
	}
}

// progressBar draws a bar width cells wide, filled to progress.
func progressBar(width int, progress float64, color lipgloss.TerminalColor) string {
	if width < 10 {
		return ""
	}
	filled := min(width, max(0, int(progress*float64(width))))
	return lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(faint).Render(strings.Repeat("░", width-filled))
}
