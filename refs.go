package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/fellowship/internal/queue"
	"github.com/dgnsrekt/fellowship/internal/scripture"
)

var errNoChapters = errors.New("name at least one chapter, e.g. John 3 or Psalms 23-25")

// parseRefs reads chapter references from command arguments. A book name
// is followed by a chapter number or range: "John 3", "1 John 2",
// "Psalms 23-25", "Romans 8 12".
func parseRefs(args []string, translation string) ([]scripture.ChapterRef, error) {
	var tokens []string
	for _, a := range args {
		tokens = append(tokens, strings.FieldsFunc(a, func(r rune) bool {
			return r == ' ' || r == ',' || r == '\t'
		})...)
	}

	var (
		refs []scripture.ChapterRef
		name []string
		book *scripture.Book
	)
	for _, tok := range tokens {
		first, last, isNum := chapterRange(tok)
		switch {
		case isNum && len(name) > 0:
			b, err := scripture.LookupBook(strings.Join(name, " "))
			if err != nil {
				return nil, err
			}
			book, name = &b, nil
		case isNum && book == nil:
			// "1" in "1 John"
			name = append(name, tok)
			continue
		case !isNum:
			name = append(name, tok)
			continue
		}

		for ch := first; ch <= last; ch++ {
			if !book.ValidChapter(ch) {
				return nil, fmt.Errorf("%s has %d chapters, not %d", book.Name, book.Chapters, ch)
			}
			refs = append(refs, scripture.ChapterRef{Translation: translation, Book: book.Name, Chapter: ch})
		}
	}

	if len(name) > 0 {
		return nil, fmt.Errorf("missing chapter after %q", strings.Join(name, " "))
	}
	if len(refs) == 0 {
		return nil, errNoChapters
	}
	return refs, nil
}

// chapterRange parses "3" or "23-25".
func chapterRange(tok string) (int, int, bool) {
	lo, hi, isRange := strings.Cut(tok, "-")
	first, err := strconv.Atoi(lo)
	if err != nil || first < 1 {
		return 0, 0, false
	}
	if !isRange {
		return first, first, true
	}
	last, err := strconv.Atoi(hi)
	if err != nil || last < first {
		return 0, 0, false
	}
	return first, last, true
}

func itemsFor(refs []scripture.ChapterRef) []queue.Item {
	items := make([]queue.Item, len(refs))
	for i, ref := range refs {
		items[i] = queue.NewItem(ref)
	}
	return items
}

// translation returns the configured translation for new chapters.
func translation() string {
	t, err := scripture.ParseTranslation(viper.GetString("translation"))
	if err != nil {
		return scripture.DefaultTranslation
	}
	return t
}
