package queue

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/fellowship/internal/scripture"
)

// Item is one chapter in the queue. Items are immutable; the ID tells apart
// two entries for the same chapter.
type Item struct {
	ID          string `json:"id" yaml:"id"`
	Translation string `json:"translation" yaml:"translation"`
	Book        string `json:"book" yaml:"book"`
	Chapter     int    `json:"chapter" yaml:"chapter"`
	Title       string `json:"title" yaml:"title"`
}

// NewItem creates a queue entry for ref.
func NewItem(ref scripture.ChapterRef) Item {
	return Item{
		ID:          uuid.NewString(),
		Translation: ref.Translation,
		Book:        ref.Book,
		Chapter:     ref.Chapter,
		Title:       ref.Title(),
	}
}

// Ref returns the chapter the item points at.
func (i Item) Ref() scripture.ChapterRef {
	return scripture.ChapterRef{Translation: i.Translation, Book: i.Book, Chapter: i.Chapter}
}

// Playlist is a saved, named list of chapters.
type Playlist struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	Items     []Item    `json:"chapters" yaml:"chapters"`
}

// Shuffle returns a shuffled copy of items. A nil r uses the global source.
func Shuffle(items []Item, r *rand.Rand) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	swap := func(i, j int) { out[i], out[j] = out[j], out[i] }
	if r == nil {
		rand.Shuffle(len(out), swap)
	} else {
		r.Shuffle(len(out), swap)
	}
	return out
}
