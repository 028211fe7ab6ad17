// Package content fetches chapter text for playback and reading.
package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgnsrekt/fellowship/internal/scripture"
)

// Provider resolves one chapter to its content.
type Provider interface {
	Chapter(ctx context.Context, ref scripture.ChapterRef) (scripture.Content, error)
}

// UnavailableError is a chapter the provider could not resolve. Message is
// meant for the listener.
type UnavailableError struct {
	Ref     scripture.ChapterRef
	Status  string
	Message string
}

func (e *UnavailableError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unable to load chapter for playback."
	}
	if e.Ref.Book == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Ref.Reference(0), msg)
}

func joinIssues(issues []string) string {
	var out []string
	for _, i := range issues {
		if i = strings.TrimSpace(i); i != "" {
			out = append(out, i)
		}
	}
	return strings.Join(out, "; ")
}
