package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/fellowship/internal/queue"
)

var (
	queueCmd = &cobra.Command{
		Use:   "queue",
		Short: "Show and edit the play queue",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return listQueue(os.Stdout)
		},
	}

	queueListCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the queued chapters",
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return listQueue(os.Stdout)
		},
	}

	queueAddCmd = &cobra.Command{
		Use:     "add BOOK CHAPTER...",
		Short:   "Add chapters to the end of the queue",
		Example: paragraph("fellowship queue add John 3\nfellowship queue add Psalms 1-5 Proverbs 3"),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			refs, err := parseRefs(args, translation())
			if err != nil {
				return err
			}
			f, q, err := loadQueue()
			if err != nil {
				return err
			}
			q.Add(itemsFor(refs)...)
			if err := saveQueue(f, q); err != nil {
				return err
			}
			fmt.Printf("Added %s to the queue.\n", chapters(len(refs)))
			return nil
		},
	}

	queueRemoveCmd = &cobra.Command{
		Use:     "remove POSITION...",
		Aliases: []string{"rm"},
		Short:   "Remove chapters by queue position",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f, q, err := loadQueue()
			if err != nil {
				return err
			}
			// resolve every position before removing anything
			ids := make([]string, 0, len(args))
			for _, a := range args {
				i, err := position(a, q.Len())
				if err != nil {
					return err
				}
				it, _ := q.At(i)
				ids = append(ids, it.ID)
			}
			for _, id := range ids {
				q.Remove(id)
			}
			if err := saveQueue(f, q); err != nil {
				return err
			}
			fmt.Printf("Removed %s.\n", chapters(len(ids)))
			return nil
		},
	}

	queueMoveCmd = &cobra.Command{
		Use:   "move FROM TO",
		Short: "Move a chapter to another queue position",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			f, q, err := loadQueue()
			if err != nil {
				return err
			}
			from, err := position(args[0], q.Len())
			if err != nil {
				return err
			}
			to, err := position(args[1], q.Len())
			if err != nil {
				return err
			}
			if !q.Move(from, to) {
				return nil
			}
			return saveQueue(f, q)
		},
	}

	queueClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Empty the queue",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			f, q, err := loadQueue()
			if err != nil {
				return err
			}
			q.Clear()
			return saveQueue(f, q)
		},
	}
)

func init() {
	queueCmd.AddCommand(queueListCmd, queueAddCmd, queueRemoveCmd, queueMoveCmd, queueClearCmd)
}

// position turns a 1-based queue position into an index.
func position(arg string, n int) (int, error) {
	p, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%q is not a queue position", arg)
	}
	if p < 1 || p > n {
		if n == 0 {
			return 0, errors.New("the queue is empty")
		}
		return 0, fmt.Errorf("position %d is outside the queue (1-%d)", p, n)
	}
	return p - 1, nil
}

func chapters(n int) string {
	if n == 1 {
		return "1 chapter"
	}
	return fmt.Sprintf("%d chapters", n)
}

func listQueue(w io.Writer) error {
	_, q, err := loadQueue()
	if err != nil {
		return err
	}
	printItems(w, q.Items(), q.Index())
	return nil
}

// printItems lists items with 1-based positions, marking current.
func printItems(w io.Writer, items []queue.Item, current int) {
	if len(items) == 0 {
		fmt.Fprintln(w, "Queue is empty.")
		return
	}

	width := 0
	for _, it := range items {
		width = max(width, runewidth.StringWidth(it.Title))
	}
	num := len(strconv.Itoa(len(items)))
	for i, it := range items {
		marker := " "
		if i == current {
			marker = "▶"
		}
		fmt.Fprintf(w, "%s %*d  %s  %s\n", marker, num, i+1,
			runewidth.FillRight(it.Title, width), faint(it.ID))
	}
}
