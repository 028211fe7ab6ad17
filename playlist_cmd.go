package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/fellowship/internal/queue"
	"github.com/dgnsrekt/fellowship/internal/store"
)

var (
	playlistCmd = &cobra.Command{
		Use:     "playlist",
		Aliases: []string{"playlists"},
		Short:   "Manage saved playlists",
		Long: paragraph(fmt.Sprintf("\nSave the queue as a %s, load one back or edit it. Playlists live on the reader service when api.url is set, otherwise in the state directory.",
			keyword("playlist"))),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPlaylists(func(lists playlistStore) error {
				return listPlaylists(cmd.Context(), lists, os.Stdout)
			})
		},
	}

	playlistListCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved playlists",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPlaylists(func(lists playlistStore) error {
				return listPlaylists(cmd.Context(), lists, os.Stdout)
			})
		},
	}

	playlistShowCmd = &cobra.Command{
		Use:   "show PLAYLIST",
		Short: "List the chapters of a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlaylists(func(lists playlistStore) error {
				p, err := findPlaylist(cmd.Context(), lists, args[0])
				if err != nil {
					return err
				}
				printItems(os.Stdout, p.Items, -1)
				return nil
			})
		},
	}

	playlistSaveCmd = &cobra.Command{
		Use:     "save NAME",
		Short:   "Save the queue as a new playlist",
		Example: paragraph("fellowship playlist save \"Morning Psalms\""),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args, " "))
			if name == "" {
				return errors.New("a playlist needs a name")
			}
			_, q, err := loadQueue()
			if err != nil {
				return err
			}
			if q.Len() == 0 {
				return errors.New("the queue is empty")
			}
			return withPlaylists(func(lists playlistStore) error {
				p, err := lists.Create(cmd.Context(), name, q.Items())
				if err != nil {
					return err
				}
				fmt.Printf("Saved %s as %s %s.\n", chapters(len(p.Items)), keyword(p.Name), faint(p.ID))
				return nil
			})
		},
	}

	playlistLoadCmd = &cobra.Command{
		Use:   "load PLAYLIST",
		Short: "Replace the queue with a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlaylists(func(lists playlistStore) error {
				p, err := findPlaylist(cmd.Context(), lists, args[0])
				if err != nil {
					return err
				}
				f, q, err := loadQueue()
				if err != nil {
					return err
				}
				items := p.Items
				if playlistShuffle {
					items = queue.Shuffle(items, nil)
				}
				q.Replace(items, 0)
				if err := saveQueue(f, q); err != nil {
					return err
				}
				fmt.Printf("Loaded %s into the queue.\n", keyword(p.Name))
				return nil
			})
		},
	}

	playlistDeleteCmd = &cobra.Command{
		Use:     "delete PLAYLIST",
		Aliases: []string{"rm"},
		Short:   "Delete a playlist",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlaylists(func(lists playlistStore) error {
				p, err := findPlaylist(cmd.Context(), lists, args[0])
				if err != nil {
					return err
				}
				if err := lists.Delete(cmd.Context(), p.ID); err != nil {
					return err
				}
				fmt.Printf("Deleted %s.\n", keyword(p.Name))
				return nil
			})
		},
	}

	playlistAddCmd = &cobra.Command{
		Use:     "add PLAYLIST BOOK CHAPTER...",
		Short:   "Append chapters to a playlist",
		Example: paragraph("fellowship playlist add \"Morning Psalms\" Psalms 90-92"),
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := parseRefs(args[1:], translation())
			if err != nil {
				return err
			}
			return withPlaylists(func(lists playlistStore) error {
				p, err := findPlaylist(cmd.Context(), lists, args[0])
				if err != nil {
					return err
				}
				for _, it := range itemsFor(refs) {
					if err := lists.Append(cmd.Context(), p.ID, it); err != nil {
						return err
					}
				}
				fmt.Printf("Added %s to %s.\n", chapters(len(refs)), keyword(p.Name))
				return nil
			})
		},
	}

	playlistRenameCmd = &cobra.Command{
		Use:   "rename PLAYLIST NAME",
		Short: "Rename a playlist",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args[1:], " "))
			if name == "" {
				return errors.New("a playlist needs a name")
			}
			return withPlaylists(func(lists playlistStore) error {
				p, err := findPlaylist(cmd.Context(), lists, args[0])
				if err != nil {
					return err
				}
				return lists.Rename(cmd.Context(), p.ID, name)
			})
		},
	}

	playlistShuffle bool
)

func init() {
	playlistLoadCmd.Flags().BoolVar(&playlistShuffle, "shuffle", false, "shuffle the chapters")
	playlistCmd.AddCommand(
		playlistListCmd,
		playlistShowCmd,
		playlistSaveCmd,
		playlistLoadCmd,
		playlistDeleteCmd,
		playlistAddCmd,
		playlistRenameCmd,
	)
}

func withPlaylists(fn func(playlistStore) error) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	lists, err := openPlaylists(client)
	if err != nil {
		return err
	}
	return fn(lists)
}

// findPlaylist matches an ID first, then a name ignoring case.
func findPlaylist(ctx context.Context, lists playlistStore, ref string) (queue.Playlist, error) {
	p, err := lists.Get(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return queue.Playlist{}, err
	}

	all, err := lists.List(ctx)
	if err != nil {
		return queue.Playlist{}, err
	}
	var found []queue.Playlist
	for _, p := range all {
		if strings.EqualFold(p.Name, ref) {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return queue.Playlist{}, fmt.Errorf("no playlist called %q", ref)
	case 1:
		return lists.Get(ctx, found[0].ID)
	default:
		return queue.Playlist{}, fmt.Errorf("%d playlists are called %q; use the ID", len(found), ref)
	}
}

func listPlaylists(ctx context.Context, lists playlistStore, w io.Writer) error {
	all, err := lists.List(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(w, "No playlists yet. Save the queue with fellowship playlist save NAME.")
		return nil
	}

	width := 0
	for _, p := range all {
		width = max(width, runewidth.StringWidth(p.Name))
	}
	for _, p := range all {
		fmt.Fprintf(w, "%s  %-12s %s  %s\n",
			runewidth.FillRight(p.Name, width),
			chapters(len(p.Items)),
			faint(humanize.Time(p.CreatedAt)),
			faint(p.ID))
	}
	return nil
}
