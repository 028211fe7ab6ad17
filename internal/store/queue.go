package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/fellowship/internal/queue"
)

type queueSnapshot struct {
	Index int          `yaml:"index"`
	Items []queue.Item `yaml:"items"`
}

// QueueFile keeps the queue and its cursor in a YAML file. A QueueFile with
// an empty path keeps nothing.
type QueueFile struct {
	path string
	mu   sync.Mutex
}

// NewQueueFile creates a queue store at path.
func NewQueueFile(path string) *QueueFile {
	return &QueueFile{path: path}
}

// Path returns the file location.
func (f *QueueFile) Path() string {
	return f.path
}

// Load reads the saved queue. A missing file is an empty queue.
func (f *QueueFile) Load() ([]queue.Item, int, error) {
	if f.path == "" {
		return nil, 0, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read queue: %w", err)
	}

	var snap queueSnapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, 0, fmt.Errorf("parse %s: %w", f.path, err)
	}

	// entries without an id can't be told apart
	items := snap.Items[:0]
	for _, it := range snap.Items {
		if it.ID != "" && it.Book != "" && it.Chapter > 0 {
			items = append(items, it)
		}
	}
	return items, snap.Index, nil
}

// SaveQueue writes the queue. It implements playback.QueueStore.
func (f *QueueFile) SaveQueue(items []queue.Item, index int) error {
	if f.path == "" {
		return nil
	}
	data, err := yaml.Marshal(queueSnapshot{Index: index, Items: items})
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := writeFileAtomic(f.path, data); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return nil
}
