package scripture

import (
	"fmt"
	"strings"
)

// ContentKind tells the segmenter how a chapter body is encoded.
type ContentKind int

const (
	// KindMarkup is HTML with <p> blocks and <sup> verse markers.
	KindMarkup ContentKind = iota
	// KindPlain is plain text with verse numbers inline.
	KindPlain
)

// String returns the string representation of the content kind.
func (k ContentKind) String() string {
	switch k {
	case KindMarkup:
		return "markup"
	case KindPlain:
		return "plain"
	default:
		return "unknown"
	}
}

// Content is a resolved chapter body as returned by a content provider.
type Content struct {
	Kind ContentKind
	Body string
}

// VerseUnit is one verse of a chapter.
type VerseUnit struct {
	Number int
	Text   string
}

// Translations offered by the chapter service.
const (
	TranslationAMP  = "AMP"
	TranslationNKJV = "NKJV"
)

// DefaultTranslation is used when none is configured.
const DefaultTranslation = TranslationAMP

// ParseTranslation normalises a translation code.
func ParseTranslation(s string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", TranslationAMP:
		return TranslationAMP, nil
	case TranslationNKJV:
		return TranslationNKJV, nil
	default:
		return "", fmt.Errorf("unsupported translation %q (use %s or %s)", s, TranslationAMP, TranslationNKJV)
	}
}

// ChapterRef identifies one chapter in one translation.
type ChapterRef struct {
	Translation string
	Book        string
	Chapter     int
}

// Title returns the display title, e.g. "John 3 (AMP)".
func (r ChapterRef) Title() string {
	return fmt.Sprintf("%s %d (%s)", r.Book, r.Chapter, r.Translation)
}

// Reference returns a verse reference within the chapter, e.g. "John 3:16".
// A non-positive verse yields the chapter reference alone.
func (r ChapterRef) Reference(verse int) string {
	if verse <= 0 {
		return fmt.Sprintf("%s %d", r.Book, r.Chapter)
	}
	return fmt.Sprintf("%s %d:%d", r.Book, r.Chapter, verse)
}

// String implements fmt.Stringer.
func (r ChapterRef) String() string {
	return r.Title()
}
