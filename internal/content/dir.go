package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dgnsrekt/fellowship/internal/scripture"
)

// DirProvider reads chapters from a local tree laid out as
// <root>/<translation>/<Book>/<chapter>.html or .txt.
type DirProvider struct {
	Root string
}

// NewDirProvider creates a provider rooted at dir.
func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{Root: dir}
}

// Chapter implements Provider. Markup files win over plain text.
func (p *DirProvider) Chapter(ctx context.Context, ref scripture.ChapterRef) (scripture.Content, error) {
	if err := ctx.Err(); err != nil {
		return scripture.Content{}, err
	}

	base := filepath.Join(p.Root, ref.Translation, ref.Book, strconv.Itoa(ref.Chapter))
	for _, c := range []struct {
		ext  string
		kind scripture.ContentKind
	}{
		{".html", scripture.KindMarkup},
		{".txt", scripture.KindPlain},
	} {
		data, err := os.ReadFile(base + c.ext)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return scripture.Content{}, fmt.Errorf("read chapter: %w", err)
		}
		return scripture.Content{Kind: c.kind, Body: string(data)}, nil
	}

	return scripture.Content{}, &UnavailableError{
		Ref:     ref,
		Status:  "unavailable",
		Message: "Chapter not available offline.",
	}
}
