package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/fellowship/internal/scripture"
)

var (
	readWidth uint

	readCmd = &cobra.Command{
		Use:   "read BOOK CHAPTER...",
		Short: "Print chapters as they will be spoken",
		Long: paragraph(fmt.Sprintf("\n%s chapters in the terminal, verse by verse, with the same cleanup the voices use.",
			keyword("Render"))),
		Example: paragraph("fellowship read John 3\nfellowship read --translation NKJV Psalms 23"),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := parseRefs(args, translation())
			if err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			provider, err := newContent(client)
			if err != nil {
				return err
			}

			r, err := chapterRenderer(viper.GetString("style"), readWidth, term.IsTerminal(int(os.Stdout.Fd()))) //nolint:gosec
			if err != nil {
				return err
			}
			for _, ref := range refs {
				c, err := provider.Chapter(cmd.Context(), ref)
				if err != nil {
					return err
				}
				out, err := r.Render(chapterMarkdown(ref, scripture.Segment(c)))
				if err != nil {
					return fmt.Errorf("unable to render %s: %w", ref.Title(), err)
				}
				if _, err := io.WriteString(os.Stdout, out); err != nil {
					return err
				}
			}
			return nil
		},
	}
)

func init() {
	readCmd.Flags().StringP("style", "s", styles.AutoStyle, "style name or JSON path")
	readCmd.Flags().UintVarP(&readWidth, "width", "w", 0, "word-wrap at width (0 fits the terminal)")
	_ = viper.BindPFlag("style", readCmd.Flags().Lookup("style"))
	viper.SetDefault("style", styles.AutoStyle)
}

// chapterMarkdown lays a chapter out as one paragraph per verse.
func chapterMarkdown(ref scripture.ChapterRef, verses []scripture.VerseUnit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", ref.Title())
	n := 0
	for _, v := range verses {
		text := scripture.Clean(v.Text, v.Number)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "**%d** %s\n\n", v.Number, text)
		n++
	}
	if n == 0 {
		b.WriteString("*No verses found.*\n")
	}
	return b.String()
}

func chapterRenderer(style string, width uint, tty bool) (*glamour.TermRenderer, error) {
	if width == 0 {
		width = 80
		if tty {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 { //nolint:gosec
				width = uint(w) //nolint:gosec
			}
		}
		// cap at 120 chars when no width was requested
		width = min(width, 120)
	}

	var styleOpt glamour.TermRendererOption
	switch {
	case style == styles.AutoStyle && !tty:
		styleOpt = glamour.WithStandardStyle(styles.NoTTYStyle)
	case style == styles.AutoStyle && lipgloss.HasDarkBackground():
		styleOpt = glamour.WithStandardStyle(styles.DarkStyle)
	case style == styles.AutoStyle:
		styleOpt = glamour.WithStandardStyle(styles.LightStyle)
	case styles.DefaultStyles[style] != nil:
		styleOpt = glamour.WithStandardStyle(style)
	default:
		path := expandPath(style)
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Join(fmt.Errorf("specified style does not exist: %s", style), err)
		}
		styleOpt = glamour.WithStylePath(path)
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		styleOpt,
		glamour.WithWordWrap(int(width)), //nolint:gosec
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create renderer: %w", err)
	}
	return r, nil
}
