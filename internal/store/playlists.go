package store

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgnsrekt/fellowship/internal/api"
	"github.com/dgnsrekt/fellowship/internal/playback"
	"github.com/dgnsrekt/fellowship/internal/queue"
	"github.com/dgnsrekt/fellowship/internal/scripture"
)

// PlaylistsPath is the playlist route of the reader service.
const PlaylistsPath = "/api/playlists"

var (
	_ playback.Playlists = (*PlaylistClient)(nil)
	_ playback.Playlists = (*MemoryPlaylists)(nil)
)

type playlistItemBody struct {
	ID          string `json:"id,omitempty"`
	Translation string `json:"translation"`
	Book        string `json:"book"`
	Chapter     int    `json:"chapter"`
	Title       string `json:"title"`
}

type playlistBody struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	CreatedAt time.Time          `json:"created_at"`
	Items     []playlistItemBody `json:"items"`
}

func (b playlistBody) playlist() queue.Playlist {
	p := queue.Playlist{ID: b.ID, Name: b.Name, CreatedAt: b.CreatedAt}
	for _, it := range b.Items {
		if it.Book == "" || it.Chapter <= 0 {
			continue
		}
		p.Items = append(p.Items, it.item())
	}
	return p
}

func (b playlistItemBody) item() queue.Item {
	ref := scripture.ChapterRef{Translation: b.Translation, Book: b.Book, Chapter: b.Chapter}
	if ref.Translation == "" {
		// rows saved before translations were recorded
		ref.Translation = scripture.TranslationNKJV
	}
	it := queue.NewItem(ref)
	if b.ID != "" {
		it.ID = b.ID
	}
	if t := strings.TrimSpace(b.Title); t != "" {
		it.Title = t
	}
	return it
}

// PlaylistClient stores playlists on the reader service.
type PlaylistClient struct {
	client *api.Client
}

// NewPlaylistClient creates a playlist store on top of an API client.
func NewPlaylistClient(client *api.Client) *PlaylistClient {
	return &PlaylistClient{client: client}
}

func playlistPath(id string, rest ...string) string {
	parts := append([]string{PlaylistsPath, url.PathEscape(id)}, rest...)
	return strings.Join(parts, "/")
}

// List returns every playlist, newest first.
func (c *PlaylistClient) List(ctx context.Context) ([]queue.Playlist, error) {
	var out struct {
		Playlists []playlistBody `json:"playlists"`
	}
	if err := c.client.DoJSON(ctx, http.MethodGet, PlaylistsPath, nil, &out); err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	lists := make([]queue.Playlist, 0, len(out.Playlists))
	for _, p := range out.Playlists {
		lists = append(lists, p.playlist())
	}
	return lists, nil
}

// Get returns one playlist. The service only lists, so this does too.
func (c *PlaylistClient) Get(ctx context.Context, id string) (queue.Playlist, error) {
	lists, err := c.List(ctx)
	if err != nil {
		return queue.Playlist{}, err
	}
	for _, p := range lists {
		if p.ID == id {
			return p, nil
		}
	}
	return queue.Playlist{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Create stores a new playlist holding items.
func (c *PlaylistClient) Create(ctx context.Context, name string, items []queue.Item) (queue.Playlist, error) {
	var out struct {
		Playlist playlistBody `json:"playlist"`
	}
	in := map[string]string{"name": name}
	if err := c.client.DoJSON(ctx, http.MethodPost, PlaylistsPath, in, &out); err != nil {
		return queue.Playlist{}, fmt.Errorf("create playlist: %w", err)
	}

	p := out.Playlist.playlist()
	for _, it := range items {
		added, err := c.appendItem(ctx, p.ID, it)
		if err != nil {
			return p, err
		}
		p.Items = append(p.Items, added)
	}
	return p, nil
}

// Rename changes a playlist's name.
func (c *PlaylistClient) Rename(ctx context.Context, id, name string) error {
	in := map[string]string{"name": name}
	if err := c.client.DoJSON(ctx, http.MethodPatch, playlistPath(id), in, nil); err != nil {
		return c.wrap("rename playlist", id, err)
	}
	return nil
}

// Delete removes a playlist.
func (c *PlaylistClient) Delete(ctx context.Context, id string) error {
	if err := c.client.DoJSON(ctx, http.MethodDelete, playlistPath(id), nil, nil); err != nil {
		return c.wrap("delete playlist", id, err)
	}
	return nil
}

// Append adds a chapter at the end of a playlist.
func (c *PlaylistClient) Append(ctx context.Context, id string, item queue.Item) error {
	_, err := c.appendItem(ctx, id, item)
	return err
}

func (c *PlaylistClient) appendItem(ctx context.Context, id string, item queue.Item) (queue.Item, error) {
	in := playlistItemBody{
		Translation: item.Translation,
		Book:        item.Book,
		Chapter:     item.Chapter,
		Title:       item.Title,
	}
	var out struct {
		Item playlistItemBody `json:"item"`
	}
	if err := c.client.DoJSON(ctx, http.MethodPost, playlistPath(id, "items"), in, &out); err != nil {
		return queue.Item{}, c.wrap("add to playlist", id, err)
	}
	if out.Item.Book == "" {
		out.Item = in
	}
	return out.Item.item(), nil
}

func (c *PlaylistClient) wrap(op, id string, err error) error {
	if api.StatusCode(err) == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %s", op, ErrNotFound, id)
	}
	return fmt.Errorf("%s: %w", op, err)
}
