package scripture

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
)

// ErrUnknownBook is returned when a book name cannot be resolved.
var ErrUnknownBook = errors.New("unknown book")

// Book is one book of the canon.
type Book struct {
	Name     string
	Code     string
	Chapters int
}

// ValidChapter reports whether n is a chapter of the book.
func (b Book) ValidChapter(n int) bool {
	return n >= 1 && n <= b.Chapters
}

// AmbiguousBookError is returned when a query matches several books equally.
type AmbiguousBookError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousBookError) Error() string {
	return fmt.Sprintf("%q is ambiguous: %s", e.Query, strings.Join(e.Candidates, ", "))
}

// Books lists the canon in order.
var Books = []Book{
	{"Genesis", "GEN", 50},
	{"Exodus", "EXO", 40},
	{"Leviticus", "LEV", 27},
	{"Numbers", "NUM", 36},
	{"Deuteronomy", "DEU", 34},
	{"Joshua", "JOS", 24},
	{"Judges", "JDG", 21},
	{"Ruth", "RUT", 4},
	{"1 Samuel", "1SA", 31},
	{"2 Samuel", "2SA", 24},
	{"1 Kings", "1KI", 22},
	{"2 Kings", "2KI", 25},
	{"1 Chronicles", "1CH", 29},
	{"2 Chronicles", "2CH", 36},
	{"Ezra", "EZR", 10},
	{"Nehemiah", "NEH", 13},
	{"Esther", "EST", 10},
	{"Job", "JOB", 42},
	{"Psalms", "PSA", 150},
	{"Proverbs", "PRO", 31},
	{"Ecclesiastes", "ECC", 12},
	{"Song of Solomon", "SNG", 8},
	{"Isaiah", "ISA", 66},
	{"Jeremiah", "JER", 52},
	{"Lamentations", "LAM", 5},
	{"Ezekiel", "EZK", 48},
	{"Daniel", "DAN", 12},
	{"Hosea", "HOS", 14},
	{"Joel", "JOL", 3},
	{"Amos", "AMO", 9},
	{"Obadiah", "OBA", 1},
	{"Jonah", "JON", 4},
	{"Micah", "MIC", 7},
	{"Nahum", "NAM", 3},
	{"Habakkuk", "HAB", 3},
	{"Zephaniah", "ZEP", 3},
	{"Haggai", "HAG", 2},
	{"Zechariah", "ZEC", 14},
	{"Malachi", "MAL", 4},
	{"Matthew", "MAT", 28},
	{"Mark", "MRK", 16},
	{"Luke", "LUK", 24},
	{"John", "JHN", 21},
	{"Acts", "ACT", 28},
	{"Romans", "ROM", 16},
	{"1 Corinthians", "1CO", 16},
	{"2 Corinthians", "2CO", 13},
	{"Galatians", "GAL", 6},
	{"Ephesians", "EPH", 6},
	{"Philippians", "PHP", 4},
	{"Colossians", "COL", 4},
	{"1 Thessalonians", "1TH", 5},
	{"2 Thessalonians", "2TH", 3},
	{"1 Timothy", "1TI", 6},
	{"2 Timothy", "2TI", 4},
	{"Titus", "TIT", 3},
	{"Philemon", "PHM", 1},
	{"Hebrews", "HEB", 13},
	{"James", "JAS", 5},
	{"1 Peter", "1PE", 5},
	{"2 Peter", "2PE", 3},
	{"1 John", "1JN", 5},
	{"2 John", "2JN", 1},
	{"3 John", "3JN", 1},
	{"Jude", "JUD", 1},
	{"Revelation", "REV", 22},
}

// common abbreviations that neither the name nor the code covers
var bookAliases = map[string]string{
	"gen": "Genesis", "exod": "Exodus", "lev": "Leviticus", "num": "Numbers",
	"deut": "Deuteronomy", "josh": "Joshua", "judg": "Judges",
	"1sam": "1 Samuel", "2sam": "2 Samuel", "1kgs": "1 Kings", "2kgs": "2 Kings",
	"1chr": "1 Chronicles", "2chr": "2 Chronicles", "neh": "Nehemiah",
	"esth": "Esther", "ps": "Psalms", "psalm": "Psalms", "prov": "Proverbs",
	"eccl": "Ecclesiastes", "song": "Song of Solomon", "isa": "Isaiah",
	"jer": "Jeremiah", "lam": "Lamentations", "ezek": "Ezekiel", "dan": "Daniel",
	"hos": "Hosea", "obad": "Obadiah", "mic": "Micah", "nah": "Nahum",
	"hab": "Habakkuk", "zeph": "Zephaniah", "hag": "Haggai", "zech": "Zechariah",
	"mal": "Malachi", "matt": "Matthew", "mk": "Mark", "lk": "Luke", "jn": "John",
	"rom": "Romans", "1cor": "1 Corinthians", "2cor": "2 Corinthians",
	"gal": "Galatians", "eph": "Ephesians", "phil": "Philippians",
	"1thess": "1 Thessalonians", "2thess": "2 Thessalonians",
	"1tim": "1 Timothy", "2tim": "2 Timothy", "phlm": "Philemon", "heb": "Hebrews",
	"jas": "James", "1pet": "1 Peter", "2pet": "2 Peter", "rev": "Revelation",
}

var (
	fold      = cases.Fold()
	bookIndex = buildBookIndex()
	bookNames = func() []string {
		names := make([]string, len(Books))
		for i, b := range Books {
			names[i] = b.Name
		}
		return names
	}()
)

func bookKey(s string) string {
	return strings.ReplaceAll(fold.String(strings.TrimSpace(s)), " ", "")
}

func buildBookIndex() map[string]Book {
	idx := make(map[string]Book, len(Books)*3)
	byName := make(map[string]Book, len(Books))
	for _, b := range Books {
		byName[b.Name] = b
		idx[bookKey(b.Name)] = b
		idx[bookKey(b.Code)] = b
	}
	for alias, name := range bookAliases {
		idx[alias] = byName[name]
	}
	return idx
}

// LookupBook resolves a book by name, code or abbreviation, falling back to a
// fuzzy match over book names.
func LookupBook(query string) (Book, error) {
	key := bookKey(query)
	if key == "" {
		return Book{}, ErrUnknownBook
	}
	if b, ok := bookIndex[key]; ok {
		return b, nil
	}

	matches := fuzzy.Find(strings.TrimSpace(query), bookNames)
	if len(matches) == 0 {
		return Book{}, fmt.Errorf("%w: %q", ErrUnknownBook, query)
	}
	if len(key) < 2 || (len(matches) > 1 && matches[0].Score == matches[1].Score) {
		var candidates []string
		for i := 0; i < len(matches) && i < 4; i++ {
			candidates = append(candidates, matches[i].Str)
		}
		return Book{}, &AmbiguousBookError{Query: query, Candidates: candidates}
	}
	return Books[matches[0].Index], nil
}
