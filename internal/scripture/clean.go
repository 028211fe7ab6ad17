package scripture

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// RE2 has no lookahead, so passes that must not consume the character after
// a marker capture it and write it back.
type pass struct {
	re   *regexp.Regexp
	repl string
}

const (
	markerPunct   = `[)\].-]?`
	speechStarter = `[A-Za-z“"'(]`
)

var cleanPasses = []pass{
	// verse numbers in <sup> markup
	{regexp.MustCompile(`(?i)<sup[^>]*>\s*\d+\s*</sup>`), ""},
	// cross references like [Dan 12:1; Rev 3:5]
	{regexp.MustCompile(`\[[^\]]*\d+:\d+[^\]]*\]`), ""},
	// bracketed numbers like [4]
	{regexp.MustCompile(`\[\s*\d+\s*\]`), ""},
	{regexp.MustCompile(`<[^>]+>`), ""},
	{regexp.MustCompile(`[⁰¹²³⁴⁵⁶⁷⁸⁹]+`), ""},
	// digits glued to a word: 2who, 4Rejoice
	{regexp.MustCompile(`\b\d+([A-Za-z])`), "${1}"},
	{regexp.MustCompile(`(^|[\s.!?;:(\[“"'—-])\d{1,3}([A-Z])`), "${1}${2}"},
	{regexp.MustCompile(`(?m)^\d+\s+`), ""},
	{regexp.MustCompile(`(^|\n)\s*\d{1,3}` + markerPunct + `\s+(` + speechStarter + `)`), "${1}${2}"},
	// after sentence punctuation: ". 4 Rejoice"
	{regexp.MustCompile(`([.!?]\s+)\d{1,3}` + markerPunct + `\s+(` + speechStarter + `)`), "${1}${2}"},
	// after clause punctuation: ", 4 and"
	{regexp.MustCompile(`([,;:]\s+)\d{1,3}` + markerPunct + `\s+(` + speechStarter + `)`), "${1}${2}"},
	// right after an opening quote or parenthesis
	{regexp.MustCompile(`([“"'(])\d{1,3}` + markerPunct + `\s+([A-Za-z])`), "${1}${2}"},
	// "4) Rejoice", "4. Rejoice"
	{regexp.MustCompile(`(^|\s)\d{1,3}[)\].-]\s+([A-Za-z])`), "${1}${2}"},
	{regexp.MustCompile(`[\[\]]`), ""},
}

var whitespace = regexp.MustCompile(`\s+`)

// ownNumberPasses caches the per-verse passes keyed by verse number.
var ownNumberPasses sync.Map

// Clean turns the raw text of one verse into speakable text. It strips verse
// markers, cross references and markup, then removes the verse's own number
// wherever it survived at a boundary. The passes run until the text stops
// changing, so Clean(Clean(s, n), n) == Clean(s, n).
//
// The result may be empty for units that were only formatting.
func Clean(text string, verse int) string {
	out := norm.NFC.String(text)
	for {
		// unescaping can leave decomposed sequences behind
		next := norm.NFC.String(cleanOnce(out, verse))
		if next == out {
			return out
		}
		out = next
	}
}

func cleanOnce(text string, verse int) string {
	for i, p := range cleanPasses {
		text = p.re.ReplaceAllString(text, p.repl)
		if i == 3 {
			// markup is gone, decode what the tags left behind
			text = html.UnescapeString(text)
		}
	}
	text = collapse(text)

	if verse > 0 {
		for _, p := range versePasses(verse) {
			text = p.re.ReplaceAllString(text, p.repl)
		}
		text = collapse(text)
	}
	return text
}

func versePasses(verse int) []pass {
	if v, ok := ownNumberPasses.Load(verse); ok {
		return v.([]pass)
	}
	n := regexp.QuoteMeta(strconv.Itoa(verse))
	passes := []pass{
		{regexp.MustCompile(fmt.Sprintf(`(^|\n)\s*%s%s\s+`, n, markerPunct)), "${1}"},
		{regexp.MustCompile(fmt.Sprintf(`([.!?;:,]\s+)%s%s\s+`, n, markerPunct)), "${1}"},
		{regexp.MustCompile(fmt.Sprintf(`([“"'(])%s%s\s+`, n, markerPunct)), "${1}"},
	}
	v, _ := ownNumberPasses.LoadOrStore(verse, passes)
	return v.([]pass)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
