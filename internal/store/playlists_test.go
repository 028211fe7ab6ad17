package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dgnsrekt/fellowship/internal/api"
	"github.com/dgnsrekt/fellowship/internal/queue"
	"github.com/dgnsrekt/fellowship/internal/scripture"
)

// playlistService is a small in-memory version of the reader's playlist
// routes.
type playlistService struct {
	t *testing.T

	mu     sync.Mutex
	lists  []playlistBody
	nextID int
}

func (s *playlistService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if got := r.Header.Get("Authorization"); got != "Bearer secret" {
		s.t.Errorf("%s %s: Authorization = %q", r.Method, r.URL.Path, got)
	}
	if r.Method != http.MethodGet && r.Header.Get("Origin") == "" {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Origin mismatch"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, PlaylistsPath)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case rest == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"playlists": s.lists})
	case rest == "" && r.Method == http.MethodPost:
		var in struct{ Name string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": "invalid"})
			return
		}
		s.nextID++
		p := playlistBody{ID: fmt.Sprintf("pl-%d", s.nextID), Name: in.Name, Items: []playlistItemBody{}}
		s.lists = append([]playlistBody{p}, s.lists...)
		writeJSON(w, http.StatusCreated, map[string]any{"playlist": p})
	case len(parts) == 2 && parts[1] == "items" && r.Method == http.MethodPost:
		i := s.find(parts[0])
		if i < 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Playlist not found"})
			return
		}
		var in playlistItemBody
		_ = json.NewDecoder(r.Body).Decode(&in)
		in.ID = fmt.Sprintf("%s-item-%d", parts[0], len(s.lists[i].Items))
		s.lists[i].Items = append(s.lists[i].Items, in)
		writeJSON(w, http.StatusCreated, map[string]any{"item": in})
	case len(parts) == 1 && r.Method == http.MethodPatch:
		i := s.find(parts[0])
		if i < 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
			return
		}
		var in struct{ Name string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		s.lists[i].Name = in.Name
		writeJSON(w, http.StatusOK, map[string]any{"playlist": s.lists[i]})
	case len(parts) == 1 && r.Method == http.MethodDelete:
		i := s.find(parts[0])
		if i < 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
			return
		}
		s.lists = append(s.lists[:i], s.lists[i+1:]...)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		http.NotFound(w, r)
	}
}

func (s *playlistService) find(id string) int {
	for i, p := range s.lists {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newPlaylistClient(t *testing.T) (*PlaylistClient, *playlistService) {
	t.Helper()
	svc := &playlistService{t: t}
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	client, err := api.NewClient(api.Config{BaseURL: srv.URL, Token: "secret", RequestsPerMinute: 6000})
	if err != nil {
		t.Fatal(err)
	}
	return NewPlaylistClient(client), svc
}

func TestPlaylistClient(t *testing.T) {
	c, svc := newPlaylistClient(t)
	ctx := context.Background()
	items := testItems()

	p, err := c.Create(ctx, "Evening", items)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == "" || p.Name != "Evening" || len(p.Items) != 2 {
		t.Fatalf("Create() = %+v", p)
	}
	if p.Items[1].Book != "Psalms" || p.Items[1].Chapter != 23 || p.Items[1].Title != "Psalms 23 (NKJV)" {
		t.Errorf("second item = %+v", p.Items[1])
	}

	extra := queue.NewItem(scripture.ChapterRef{Translation: "AMP", Book: "Ruth", Chapter: 1})
	if err := c.Append(ctx, p.ID, extra); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := c.Rename(ctx, p.ID, "Night"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	got, err := c.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Night" || len(got.Items) != 3 || got.Items[2].Book != "Ruth" {
		t.Errorf("Get() = %+v", got)
	}

	svc.mu.Lock()
	if len(svc.lists[0].Items) != 3 {
		t.Errorf("service holds %d items", len(svc.lists[0].Items))
	}
	svc.mu.Unlock()

	if err := c.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	lists, err := c.List(ctx)
	if err != nil || len(lists) != 0 {
		t.Errorf("List() = %v, %v", lists, err)
	}
}

func TestPlaylistClientNotFound(t *testing.T) {
	c, _ := newPlaylistClient(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
	if err := c.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete = %v, want ErrNotFound", err)
	}
	if err := c.Append(ctx, "nope", testItems()[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Append = %v, want ErrNotFound", err)
	}
}

func TestPlaylistClientRejected(t *testing.T) {
	c, _ := newPlaylistClient(t)
	_, err := c.Create(context.Background(), "", nil)
	if api.StatusCode(err) != http.StatusBadRequest {
		t.Errorf("Create with no name = %v", err)
	}
}

func TestPlaylistItemDefaults(t *testing.T) {
	it := playlistItemBody{ID: "row-1", Book: "John", Chapter: 3}.item()
	if it.ID != "row-1" || it.Translation != scripture.TranslationNKJV || it.Title != "John 3 (NKJV)" {
		t.Errorf("item() = %+v", it)
	}

	p := playlistBody{ID: "p", Items: []playlistItemBody{{Book: "", Chapter: 1}, {Book: "John", Chapter: 0}}}.playlist()
	if len(p.Items) != 0 {
		t.Errorf("broken rows kept: %+v", p.Items)
	}
}
