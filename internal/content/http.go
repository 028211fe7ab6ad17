package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgnsrekt/fellowship/internal/api"
	"github.com/dgnsrekt/fellowship/internal/scripture"
)

// ChapterPath is the chapter route of the reader service.
const ChapterPath = "/api/bible/chapter"

type chapterRequest struct {
	Book        string `json:"book"`
	Chapter     int    `json:"chapter"`
	Translation string `json:"translation"`
}

// chapterResponse covers every shape the route answers with.
type chapterResponse struct {
	Status      string          `json:"status"`
	ChapterID   string          `json:"chapterId"`
	Translation string          `json:"translation"`
	HTML        string          `json:"html"`
	Text        string          `json:"text"`
	Message     string          `json:"message"`
	Error       string          `json:"error"`
	Issues      json.RawMessage `json:"issues"`
}

// HTTPProvider loads chapters from the reader service.
type HTTPProvider struct {
	client *api.Client
}

// NewHTTPProvider creates a provider on top of an API client.
func NewHTTPProvider(client *api.Client) *HTTPProvider {
	return &HTTPProvider{client: client}
}

// Chapter implements Provider. Anything other than a resolved chapter is an
// *UnavailableError; nothing is retried.
func (p *HTTPProvider) Chapter(ctx context.Context, ref scripture.ChapterRef) (scripture.Content, error) {
	body, err := json.Marshal(chapterRequest{
		Book:        ref.Book,
		Chapter:     ref.Chapter,
		Translation: ref.Translation,
	})
	if err != nil {
		return scripture.Content{}, fmt.Errorf("marshal request: %w", err)
	}

	target, err := p.client.Resolve(ChapterPath)
	if err != nil {
		return scripture.Content{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return scripture.Content{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return scripture.Content{}, err
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return scripture.Content{}, fmt.Errorf("read chapter: %w", err)
	}

	// error statuses still carry a JSON body with a status field
	var cr chapterResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		if resp.StatusCode >= 300 {
			return scripture.Content{}, &UnavailableError{Ref: ref, Status: resp.Status}
		}
		return scripture.Content{}, fmt.Errorf("decode chapter: %w", err)
	}

	switch cr.Status {
	case "resolved":
		if strings.TrimSpace(cr.HTML) != "" {
			return scripture.Content{Kind: scripture.KindMarkup, Body: cr.HTML}, nil
		}
		return scripture.Content{Kind: scripture.KindPlain, Body: cr.Text}, nil
	case "unavailable":
		return scripture.Content{}, &UnavailableError{Ref: ref, Status: cr.Status, Message: cr.Message}
	case "invalid":
		return scripture.Content{}, &UnavailableError{Ref: ref, Status: cr.Status, Message: issuesMessage(cr.Issues)}
	}

	msg := cr.Message
	if msg == "" {
		msg = cr.Error
	}
	status := cr.Status
	if status == "" {
		status = resp.Status
	}
	return scripture.Content{}, &UnavailableError{Ref: ref, Status: status, Message: msg}
}

// issuesMessage flattens either a list of strings or a validation tree of
// {formErrors, fieldErrors}.
func issuesMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return joinIssues(list)
	}
	var tree struct {
		FormErrors  []string            `json:"formErrors"`
		FieldErrors map[string][]string `json:"fieldErrors"`
	}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return ""
	}
	list = append(list, tree.FormErrors...)
	for field, errs := range tree.FieldErrors {
		for _, e := range errs {
			list = append(list, field+": "+e)
		}
	}
	return joinIssues(list)
}

// IsUnavailable reports whether err is a non-resolved chapter.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
