package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/fellowship/internal/queue"
)

// MemoryPlaylists keeps playlists in process, optionally mirrored to a YAML
// file so they survive restarts without the reader service.
type MemoryPlaylists struct {
	mu    sync.Mutex
	lists []queue.Playlist
	path  string
	now   func() time.Time
}

// NewMemoryPlaylists creates an empty store that keeps nothing on disk.
func NewMemoryPlaylists() *MemoryPlaylists {
	return &MemoryPlaylists{now: time.Now}
}

// OpenPlaylistFile loads playlists from path and writes every change back.
// A missing file starts empty.
func OpenPlaylistFile(path string) (*MemoryPlaylists, error) {
	m := &MemoryPlaylists{path: path, now: time.Now}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read playlists: %w", err)
	}
	if err := yaml.Unmarshal(data, &m.lists); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

func (m *MemoryPlaylists) find(id string) int {
	for i, p := range m.lists {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// persist must be called with mu held.
func (m *MemoryPlaylists) persist() error {
	if m.path == "" {
		return nil
	}
	data, err := yaml.Marshal(m.lists)
	if err != nil {
		return fmt.Errorf("encode playlists: %w", err)
	}
	if err := writeFileAtomic(m.path, data); err != nil {
		return fmt.Errorf("write playlists: %w", err)
	}
	return nil
}

func clonePlaylist(p queue.Playlist) queue.Playlist {
	p.Items = append([]queue.Item(nil), p.Items...)
	return p
}

// List returns every playlist, newest first.
func (m *MemoryPlaylists) List(context.Context) ([]queue.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]queue.Playlist, 0, len(m.lists))
	for _, p := range m.lists {
		out = append(out, clonePlaylist(p))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Get returns one playlist.
func (m *MemoryPlaylists) Get(_ context.Context, id string) (queue.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(id)
	if i < 0 {
		return queue.Playlist{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clonePlaylist(m.lists[i]), nil
}

// Create stores a new playlist holding items. Every entry gets its own id.
func (m *MemoryPlaylists) Create(_ context.Context, name string, items []queue.Item) (queue.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := queue.Playlist{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: m.now(),
	}
	for _, it := range items {
		it.ID = uuid.NewString()
		p.Items = append(p.Items, it)
	}
	m.lists = append(m.lists, p)
	return clonePlaylist(p), m.persist()
}

// Rename changes a playlist's name.
func (m *MemoryPlaylists) Rename(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.lists[i].Name = name
	return m.persist()
}

// Delete removes a playlist.
func (m *MemoryPlaylists) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.lists = append(m.lists[:i], m.lists[i+1:]...)
	return m.persist()
}

// Append adds a chapter at the end of a playlist.
func (m *MemoryPlaylists) Append(_ context.Context, id string, item queue.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	item.ID = uuid.NewString()
	m.lists[i].Items = append(m.lists[i].Items, item)
	return m.persist()
}
