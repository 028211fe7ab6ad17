package scripture

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxVerseGap is how far past the running verse a plain-text integer may jump
// and still count as the next verse marker. Translations that omit a verse
// skip one or two numbers; larger jumps are quantities in the text.
const maxVerseGap = 5

// headerClasses mark paragraphs that carry section headings or titles rather
// than verse text.
var headerClasses = []string{"s1", "s2", "ms", "mt"}

// Segment splits chapter content into verse units using the strategy chosen
// by the content kind. It never fails: content without any recognisable verse
// yields an empty slice.
func Segment(c Content) []VerseUnit {
	switch c.Kind {
	case KindMarkup:
		return SegmentMarkup(c.Body)
	case KindPlain:
		return SegmentPlain(c.Body)
	default:
		return nil
	}
}

// SegmentMarkup segments an HTML chapter body. Each <p> block is scanned for
// <sup> verse markers; the text accumulated before a marker is flushed as one
// unit. Text with no pending marker is numbered one past the highest number
// seen so far.
//
// A marker must be a positive integer greater than every number already used
// in the chapter. Anything else is kept as ordinary text of the current unit.
func SegmentMarkup(body string) []VerseUnit {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	s := &markupSegmenter{}
	for _, p := range paragraphs(doc) {
		if isHeader(p) {
			continue
		}
		s.paragraph(p)
	}
	return s.verses
}

type markupSegmenter struct {
	verses  []VerseUnit
	highest int

	pending int // marker number waiting for its text, 0 if none
	buf     strings.Builder
}

func (s *markupSegmenter) paragraph(p *html.Node) {
	s.pending = 0
	s.buf.Reset()

	for c := p.FirstChild; c != nil; c = c.NextSibling {
		if n, ok := s.marker(c); ok {
			if strings.TrimSpace(s.buf.String()) != "" {
				s.flush()
			}
			s.pending = n
			continue
		}

		switch c.Type {
		case html.ElementNode:
			var b bytes.Buffer
			if err := html.Render(&b, c); err == nil {
				s.buf.Write(b.Bytes())
			}
		case html.TextNode:
			s.buf.WriteString(c.Data)
		}
	}

	if strings.TrimSpace(s.buf.String()) != "" {
		s.flush()
	}
}

// marker reports whether n is an acceptable verse marker and its number.
func (s *markupSegmenter) marker(n *html.Node) (int, bool) {
	if n.Type != html.ElementNode || n.DataAtom != atom.Sup {
		return 0, false
	}
	num, ok := parseDigits(textContent(n))
	if !ok {
		return 0, false
	}
	if num <= s.highest || num <= s.pending {
		return 0, false
	}
	return num, true
}

func (s *markupSegmenter) flush() {
	text := s.buf.String()
	s.buf.Reset()
	if strings.TrimSpace(text) == "" {
		return
	}

	num := s.pending
	if num == 0 {
		num = s.highest + 1
	}
	if num > s.highest {
		s.highest = num
	}
	s.pending = 0
	s.verses = append(s.verses, VerseUnit{Number: num, Text: text})
}

// SegmentPlain segments a plain-text chapter body. Whitespace is collapsed
// and the text is split at integer tokens followed by more text; each split
// becomes one unit. Text before the first verse number is dropped.
//
// The token that follows a verse number always belongs to that verse, so a
// run like "3 4 ..." is verse 3 starting with the word "4". The first marker
// may be any positive integer. After it, an integer token is a marker only if
// it is greater than the running verse number by at most maxVerseGap; every
// other integer stays in the running verse's text, so "5000 men" is not a
// verse.
func SegmentPlain(body string) []VerseUnit {
	fields := strings.Fields(body)

	var (
		verses  []VerseUnit
		current []string
		number  int
	)
	flush := func() {
		if number == 0 {
			return
		}
		if text := strings.Join(current, " "); text != "" {
			verses = append(verses, VerseUnit{Number: number, Text: text})
		}
	}

	for i := 0; i < len(fields); i++ {
		f := fields[i]
		n, ok := parseInteger(f)
		if ok && isNextVerse(number, n) && i+1 < len(fields) {
			flush()
			number = n
			// the next token belongs to this verse whatever it is
			current = []string{fields[i+1]}
			i++
			continue
		}
		if number == 0 {
			continue
		}
		current = append(current, f)
	}
	flush()

	return verses
}

// isNextVerse reports whether n can follow the running verse number.
func isNextVerse(number, n int) bool {
	if number == 0 {
		return true
	}
	return n > number && n <= number+maxVerseGap
}

// paragraphs returns every <p> element in document order.
func paragraphs(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.P {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func isHeader(p *html.Node) bool {
	for _, a := range p.Attr {
		if a.Key != "class" {
			continue
		}
		class := strings.ToLower(a.Val)
		for _, h := range headerClasses {
			if strings.Contains(class, h) {
				return true
			}
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

// parseDigits keeps only the digits of s and parses them as a positive
// integer. "16 " and "v16" both give 16.
func parseDigits(s string) (int, bool) {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return parseInteger(digits.String())
}

// parseInteger parses a token made only of ASCII digits into a positive int.
func parseInteger(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
