package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/fellowship/internal/playback"
	"github.com/dgnsrekt/fellowship/internal/queue"
	"github.com/dgnsrekt/fellowship/ui"
)

type playOptions struct {
	playlist string
	shuffle  bool
	from     int // 1-based queue position, 0 keeps the saved one
	now      bool
	headless bool
	idle     bool // open the player without starting anything
}

var (
	playFlags playOptions

	playCmd = &cobra.Command{
		Use:   "play [BOOK CHAPTER]...",
		Short: "Play the queue, a playlist or some chapters",
		Long: paragraph(fmt.Sprintf("\n%s chapters verse by verse. Chapters named on the command line are added to the queue and played first. "+
			"On a terminal the mini-player opens; otherwise verse changes are printed until the queue ends.", keyword("Play"))),
		Example: paragraph("fellowship play\nfellowship play John 3 Romans 8\nfellowship play Psalms 23-25\nfellowship play --now 1 John 4\nfellowship play --playlist ID --shuffle"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), args, playFlags)
		},
	}
)

func init() {
	playCmd.Flags().StringVar(&playFlags.playlist, "playlist", "", "replace the queue with a saved playlist")
	playCmd.Flags().BoolVar(&playFlags.shuffle, "shuffle", false, "shuffle the playlist")
	playCmd.Flags().IntVar(&playFlags.from, "from", 0, "start at this queue position")
	playCmd.Flags().BoolVar(&playFlags.now, "now", false, "play the first chapter without adding it to the queue")
	playCmd.Flags().BoolVar(&playFlags.headless, "headless", false, "print progress instead of opening the mini-player")
}

func runPlay(ctx context.Context, args []string, opts playOptions) error {
	var items []queue.Item
	if len(args) > 0 {
		refs, err := parseRefs(args, translation())
		if err != nil {
			return err
		}
		items = itemsFor(refs)
	}
	switch {
	case opts.now && len(items) == 0:
		return errors.New("--now needs a chapter")
	case opts.playlist != "" && len(items) > 0:
		return errors.New("play either a playlist or chapters, not both")
	}

	p, err := newPlayer()
	if err != nil {
		return err
	}
	defer p.Close()

	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()
	err = p.settings.Watch(watchCtx, func(s playback.Settings) {
		if err := p.engine.ApplySettings(s); err != nil {
			log.Debug("Settings not applied", "err", err)
		}
	})
	if err != nil {
		log.Warn("Settings changes will need a restart", "err", err)
	}

	if err := startPlayback(ctx, p.engine, items, opts); err != nil {
		return err
	}

	if !opts.headless && term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec
		return runTUI(p)
	}
	return runHeadless(ctx, p.engine, os.Stdout)
}

// startPlayback kicks off whatever opts asks for.
func startPlayback(ctx context.Context, e *playback.Engine, items []queue.Item, opts playOptions) error {
	switch {
	case opts.now:
		if err := e.PlayChapterNow(items[0]); err != nil {
			return err
		}
		if len(items) > 1 {
			return e.AddToQueue(items[1:]...)
		}
		return nil

	case len(items) > 0:
		first := len(e.Snapshot().Queue)
		if err := e.AddToQueue(items...); err != nil {
			return err
		}
		return e.PlayFromIndex(first)

	case opts.playlist != "":
		return e.PlayPlaylist(ctx, opts.playlist, playback.PlayOptions{
			Shuffle:    opts.shuffle,
			StartIndex: max(0, opts.from-1),
		})

	case opts.from > 0:
		return e.PlayFromIndex(opts.from - 1)

	case opts.idle:
		return nil

	default:
		s := e.Snapshot()
		if len(s.Queue) == 0 {
			return errors.New("the queue is empty; add chapters with fellowship queue add")
		}
		return e.PlayFromIndex(s.Index)
	}
}

func runTUI(p *player) error {
	// Read environment to get debugging stuff
	cfg, err := uiConfig()
	if err != nil {
		return err
	}
	cfg.LocalVoices = p.localVoiceNames()

	quietLog()
	if _, err := ui.NewProgram(cfg, p.engine).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func runHeadless(ctx context.Context, e *playback.Engine, w io.Writer) error {
	headlessLog()
	snaps, unsubscribe := e.Subscribe()
	defer unsubscribe()
	return follow(ctx, e.Snapshot(), snaps, w, outputWidth())
}

func outputWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 { //nolint:gosec
		return min(w, 120)
	}
	return 80
}

// follow prints chapter, verse and status changes until playback ends or
// ctx is done.
func follow(ctx context.Context, s playback.Snapshot, snaps <-chan playback.Snapshot, w io.Writer, width int) error {
	var (
		last   playback.Snapshot
		active bool
		first  = true
	)
	for {
		if s.Session != last.Session && s.Item.Book != "" && s.State.Active() {
			fmt.Fprintf(w, "▶ %s\n", s.Item.Title)
		}
		if s.State == playback.StateSpeaking && s.VersePos > 0 &&
			(s.Verse != last.Verse || s.Session != last.Session || last.State != playback.StateSpeaking) {
			fmt.Fprintf(w, "  %s  %s\n", s.Item.Ref().Reference(s.Verse),
				faint(fmt.Sprintf("%d/%d", s.VersePos, s.VerseCount)))
		}
		if s.State == playback.StatePaused && last.State != playback.StatePaused {
			fmt.Fprintln(w, "  paused")
		}
		if s.Status != "" && (s.Status != last.Status || first) {
			fmt.Fprintln(w, wordwrap.String("  "+s.Status, width))
		}

		if s.State.Active() {
			active = true
		} else if active || first {
			return nil
		}
		last, first = s, false

		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-snaps:
			if !ok {
				return nil
			}
			s = next
		}
	}
}
