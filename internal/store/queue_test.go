package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgnsrekt/fellowship/internal/queue"
	"github.com/dgnsrekt/fellowship/internal/scripture"
)

func testItems() []queue.Item {
	return []queue.Item{
		queue.NewItem(scripture.ChapterRef{Translation: "AMP", Book: "John", Chapter: 3}),
		queue.NewItem(scripture.ChapterRef{Translation: "NKJV", Book: "Psalms", Chapter: 23}),
	}
}

func TestQueueFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "queue.yml")
	f := NewQueueFile(path)
	items := testItems()

	if err := f.SaveQueue(items, 1); err != nil {
		t.Fatalf("SaveQueue: %v", err)
	}
	got, index, err := NewQueueFile(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if index != 1 || len(got) != 2 {
		t.Fatalf("Load() = %d items at %d", len(got), index)
	}
	for i := range items {
		if got[i] != items[i] {
			t.Errorf("item %d = %+v, want %+v", i, got[i], items[i])
		}
	}
}

func TestQueueFileMissing(t *testing.T) {
	items, index, err := NewQueueFile(filepath.Join(t.TempDir(), "queue.yml")).Load()
	if err != nil || len(items) != 0 || index != 0 {
		t.Errorf("Load() = %v, %d, %v", items, index, err)
	}
}

func TestQueueFileDropsBrokenEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.yml")
	body := `index: 0
items:
  - id: a
    translation: AMP
    book: John
    chapter: 3
    title: John 3 (AMP)
  - id: ""
    book: John
    chapter: 4
  - id: c
    book: ""
    chapter: 1
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	items, _, err := NewQueueFile(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 1 || items[0].ID != "a" {
		t.Errorf("Load() = %+v", items)
	}
}

func TestQueueFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.yml")
	if err := os.WriteFile(path, []byte("items: {"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewQueueFile(path).Load(); err == nil {
		t.Error("expected an error for a corrupt file")
	}
}

func TestQueueFileDisabled(t *testing.T) {
	f := NewQueueFile("")
	if err := f.SaveQueue(testItems(), 0); err != nil {
		t.Errorf("SaveQueue: %v", err)
	}
	if items, _, err := f.Load(); err != nil || items != nil {
		t.Errorf("Load() = %v, %v", items, err)
	}
}
