// Package ui provides the mini-player for the fellowship application.
package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"

	"github.com/dgnsrekt/fellowship/internal/playback"
	"github.com/dgnsrekt/fellowship/internal/tts"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show messages like "Copied"
	ellipsis             = "…"

	rateStep      = 0.05
	crossfadeStep = 50

	defaultWidth = 80

	// lines the view uses besides the queue
	chromeHeight = 11
)

// NewProgram returns a new Tea program driving ctrl.
func NewProgram(cfg Config, ctrl Controller) *tea.Program {
	log.Debug("Starting mini-player", "alt_screen", cfg.AltScreen, "local_voices", len(cfg.LocalVoices))

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	return tea.NewProgram(newModel(cfg, ctrl), opts...)
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type (
	snapshotMsg             playback.Snapshot
	engineClosedMsg         struct{}
	statusMsg               string
	statusMessageTimeoutMsg int
)

type model struct {
	cfg  Config
	ctrl Controller

	snaps       <-chan playback.Snapshot
	unsubscribe func()

	snap   playback.Snapshot
	seen   bool
	cursor int

	width  int
	height int

	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	spinning bool

	statusMessage string
	statusGen     int

	copy func(string) error
}

func newModel(cfg Config, ctrl Controller) model {
	snaps, unsubscribe := ctrl.Subscribe()
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(stateColor(playback.StateLoading))
	return model{
		cfg:         cfg,
		ctrl:        ctrl,
		snaps:       snaps,
		unsubscribe: unsubscribe,
		snap:        ctrl.Snapshot(),
		keys:        newKeyMap(),
		help:        help.New(),
		spinner:     sp,
		copy:        copier(os.Stdout, clipboard.WriteAll),
	}
}

func (m model) Init() tea.Cmd {
	return waitForSnapshot(m.snaps)
}

func waitForSnapshot(ch <-chan playback.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return engineClosedMsg{}
		}
		return snapshotMsg(s)
	}
}

// act runs fn off the update loop. A non-empty note is shown when fn
// succeeds.
func act(fn func() error, note string) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return errMsg{err}
		}
		if note != "" {
			return statusMsg(note)
		}
		return nil
	}
}

func (m *model) showStatusMessage(msg string) tea.Cmd {
	m.statusMessage = msg
	m.statusGen++
	gen := m.statusGen
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg(gen)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case snapshotMsg:
		m.snap = playback.Snapshot(msg)
		if !m.seen {
			m.seen = true
			m.cursor = m.snap.Index
		}
		m.clampCursor()
		cmds := []tea.Cmd{waitForSnapshot(m.snaps)}
		if m.snap.State == playback.StateLoading && !m.spinning {
			m.spinning = true
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case engineClosedMsg:
		log.Debug("Engine closed, leaving mini-player")
		return m, tea.Quit

	case spinner.TickMsg:
		if m.snap.State != playback.StateLoading {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		return m, m.showStatusMessage(string(msg))

	case statusMessageTimeoutMsg:
		if int(msg) == m.statusGen {
			m.statusMessage = ""
		}

	case errMsg:
		if errors.Is(msg.err, playback.ErrClosed) {
			return m, tea.Quit
		}
		log.Debug("Player action failed", "error", msg.err)
		return m, m.showStatusMessage(errorMessage(msg.err))

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, playback.ErrNoBackend):
		return "That voice backend is not configured."
	case errors.Is(err, tts.ErrNoVoices):
		return "No local voices installed."
	default:
		return err.Error()
	}
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	settings := m.snap.Settings

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Pause):
		return m, act(m.ctrl.TogglePause, "")
	case key.Matches(msg, m.keys.Next):
		return m, act(m.ctrl.PlayNext, "")
	case key.Matches(msg, m.keys.Previous):
		return m, act(m.ctrl.PlayPrevious, "")
	case key.Matches(msg, m.keys.Stop):
		return m, act(m.ctrl.Stop, "")
	case key.Matches(msg, m.keys.Play):
		if m.cursor < 0 || m.cursor >= len(m.snap.Queue) {
			return m, nil
		}
		i := m.cursor
		return m, act(func() error { return m.ctrl.PlayFromIndex(i) }, "")

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.snap.Queue)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.MoveUp):
		return m.move(-1)
	case key.Matches(msg, m.keys.MoveDown):
		return m.move(1)
	case key.Matches(msg, m.keys.Remove):
		if m.cursor < 0 || m.cursor >= len(m.snap.Queue) {
			return m, nil
		}
		it := m.snap.Queue[m.cursor]
		return m, act(func() error { return m.ctrl.RemoveFromQueue(it.ID) }, "Removed "+it.Title)

	case key.Matches(msg, m.keys.Faster):
		rate := playback.ClampRate(settings.Rate + rateStep)
		return m, act(func() error { return m.ctrl.SetRate(rate) }, "")
	case key.Matches(msg, m.keys.Slower):
		rate := playback.ClampRate(settings.Rate - rateStep)
		return m, act(func() error { return m.ctrl.SetRate(rate) }, "")
	case key.Matches(msg, m.keys.Longer):
		ms := playback.ClampCrossfade(settings.CrossfadeMS + crossfadeStep)
		return m, act(func() error { return m.ctrl.SetCrossfade(ms) }, "")
	case key.Matches(msg, m.keys.Shorter):
		ms := playback.ClampCrossfade(settings.CrossfadeMS - crossfadeStep)
		return m, act(func() error { return m.ctrl.SetCrossfade(ms) }, "")
	case key.Matches(msg, m.keys.Repeat):
		mode := settings.Repeat.Next()
		return m, act(func() error { return m.ctrl.SetRepeatMode(mode) }, "Repeat: "+mode.String())
	case key.Matches(msg, m.keys.Backend):
		k := tts.KindRemote
		if settings.Backend == tts.KindRemote {
			k = tts.KindLocal
		}
		return m, act(func() error { return m.ctrl.SetBackend(k) }, fmt.Sprintf("Using %s voices", k))
	case key.Matches(msg, m.keys.Voice):
		return m.nextVoice()

	case key.Matches(msg, m.keys.Copy):
		return m, m.copyReference()
	}
	return m, nil
}

func (m model) move(delta int) (tea.Model, tea.Cmd) {
	from, to := m.cursor, m.cursor+delta
	if from < 0 || to < 0 || to >= len(m.snap.Queue) {
		return m, nil
	}
	m.cursor = to
	return m, act(func() error { return m.ctrl.MoveItem(from, to) }, "")
}

func (m model) nextVoice() (tea.Model, tea.Cmd) {
	s := m.snap.Settings
	if s.Backend == tts.KindRemote {
		v := cycle(tts.RemoteVoices, s.RemoteVoice)
		return m, act(func() error { return m.ctrl.SetRemoteVoice(v) }, "Voice: "+v)
	}
	if len(m.cfg.LocalVoices) == 0 {
		return m, func() tea.Msg { return errMsg{tts.ErrNoVoices} }
	}
	v := cycle(m.cfg.LocalVoices, s.LocalVoice)
	return m, act(func() error { return m.ctrl.SetLocalVoice(v) }, "Voice: "+v)
}

// cycle returns the entry after cur, wrapping around. An unknown cur yields
// the first entry.
func cycle(list []string, cur string) string {
	for i, v := range list {
		if v == cur {
			return list[(i+1)%len(list)]
		}
	}
	return list[0]
}

// copier copies over OSC 52 on out and to the native clipboard. Terminals
// without a native clipboard (ssh, headless) still get the OSC 52 sequence.
func copier(out io.Writer, native func(string) error) func(string) error {
	osc := termenv.NewOutput(out)
	return func(s string) error {
		osc.Copy(s)
		if err := native(s); err != nil {
			log.Debug("Native clipboard unavailable", "error", err)
		}
		return nil
	}
}

func (m model) copyReference() tea.Cmd {
	if m.snap.Item.Book == "" {
		return nil
	}
	verse := 0
	if m.snap.State == playback.StateSpeaking || m.snap.State == playback.StatePaused {
		verse = m.snap.Verse
	}
	ref := m.snap.Item.Ref().Reference(verse)
	write := m.copy
	return func() tea.Msg {
		if err := write(ref); err != nil {
			return errMsg{fmt.Errorf("copy: %w", err)}
		}
		return statusMsg("Copied " + ref)
	}
}

func (m *model) clampCursor() {
	if m.cursor >= len(m.snap.Queue) {
		m.cursor = len(m.snap.Queue) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// VIEW

func (m model) View() string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}

	var b strings.Builder
	m.headerView(&b, width)
	m.nowPlayingView(&b, width)
	b.WriteString("\n")
	m.queueView(&b, width)
	b.WriteString("\n")
	b.WriteString(m.fit(dimStyle(m.settingsLine()), width))
	b.WriteString("\n")
	m.statusBarView(&b, width)
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m model) fit(s string, width int) string {
	return truncate.StringWithTail(s, uint(max(0, width)), ellipsis) //nolint:gosec
}

func (m model) headerView(b *strings.Builder, width int) {
	icon := stateIcon(m.snap.State)
	if m.snap.State == playback.StateLoading {
		icon = m.spinner.View()
	}
	badge := lipgloss.NewStyle().Foreground(stateColor(m.snap.State)).
		Render(fmt.Sprintf("%s %s", icon, m.snap.State))
	fmt.Fprintf(b, "%s %s\n", logoStyle(" Fellowship "), badge)
}

func (m model) nowPlayingView(b *strings.Builder, width int) {
	it := m.snap.Item
	if it.Book == "" {
		b.WriteString(dimStyle("Nothing playing") + "\n\n")
		return
	}

	title := it.Title
	if m.snap.Standalone {
		title += dimStyle(" (not in queue)")
	}
	b.WriteString(m.fit(titleStyle(title), width) + "\n")

	if m.snap.VerseCount > 0 && m.snap.VersePos > 0 {
		line := fmt.Sprintf("%s  %d/%d", it.Ref().Reference(m.snap.Verse), m.snap.VersePos, m.snap.VerseCount)
		b.WriteString(m.fit(dimStyle(line), width) + "\n")
		progress := float64(m.snap.VersePos) / float64(m.snap.VerseCount)
		b.WriteString(progressBar(min(width, 60), progress, stateColor(m.snap.State)) + "\n")
		return
	}
	b.WriteString("\n\n")
}

func (m model) queueView(b *strings.Builder, width int) {
	q := m.snap.Queue
	fmt.Fprintf(b, "%s\n", titleStyle(fmt.Sprintf("Queue (%d)", len(q))))
	if len(q) == 0 {
		b.WriteString(dimStyle("  Queue is empty.") + "\n")
		return
	}

	start, end := queueWindow(len(q), m.cursor, m.queueRows())
	for i := start; i < end; i++ {
		marker := "  "
		if i == m.snap.Index && !m.snap.Standalone {
			marker = "♪ "
		}
		line := m.fit(fmt.Sprintf("%s%2d. %s", marker, i+1, q[i].Title), width-2)
		switch {
		case i == m.cursor:
			line = selectedStyle("> " + line)
		case i == m.snap.Index && !m.snap.Standalone:
			line = "  " + currentStyle(line)
		default:
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	if end-start < len(q) {
		b.WriteString(dimStyle(fmt.Sprintf("  %d-%d of %d", start+1, end, len(q))) + "\n")
	}
}

func (m model) queueRows() int {
	if m.height <= 0 {
		return 0
	}
	return max(3, m.height-chromeHeight)
}

// queueWindow returns the slice of an n long queue to draw so that cursor is
// visible. rows <= 0 shows everything.
func queueWindow(n, cursor, rows int) (int, int) {
	if rows <= 0 || n <= rows {
		return 0, n
	}
	start := max(0, cursor-rows/2)
	if start+rows > n {
		start = n - rows
	}
	return start, start + rows
}

func (m model) settingsLine() string {
	s := m.snap.Settings
	voice := s.Voice()
	if voice == "" {
		voice = "default"
	}
	return fmt.Sprintf("rate %.2f  crossfade %dms  %s voice %s  repeat %s",
		s.Rate, s.CrossfadeMS, s.Backend, voice, s.Repeat)
}

func (m model) statusBarView(b *strings.Builder, width int) {
	note := m.snap.Status
	style := statusBarNoteStyle
	if m.statusMessage != "" {
		note = m.statusMessage
		style = statusBarMessageStyle
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, width)), ellipsis) //nolint:gosec
	padding := max(0, width-ansi.PrintableRuneWidth(note))
	b.WriteString(style(note + strings.Repeat(" ", padding)))
}
