package cache

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T, memory int64) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MemoryCapacity = memory
	cfg.DiskCapacity = 1 << 20
	cfg.Dir = t.TempDir()
	cfg.CleanupInterval = 0
	m, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_PutGet(t *testing.T) {
	m := newTestManager(t, 1024)

	key := Key("In the beginning", "AMP")
	if err := m.Put(key, []byte("mp3")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	m.Wait()

	got, ok := m.Get(key)
	if !ok || string(got) != "mp3" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if s := m.Stats(); s.MemoryHits != 1 || s.Disk.Items != 1 {
		t.Errorf("unexpected stats %+v", s)
	}

	if err := m.Delete(key); err != nil {
		t.Fatal(err)
	}
	if m.Contains(key) {
		t.Error("key still cached after Delete")
	}
}

func TestManager_PromotesDiskHits(t *testing.T) {
	m := newTestManager(t, 1024)

	_ = m.Put("k", []byte("value"))
	m.Wait()
	_ = m.memory.Clear()

	if _, ok := m.Get("k"); !ok {
		t.Fatal("expected a disk hit")
	}
	if !m.memory.Contains("k") {
		t.Error("disk hit should be promoted to memory")
	}
	s := m.Stats()
	if s.DiskHits != 1 || s.Promotions != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestManager_LargeValuesSkipMemory(t *testing.T) {
	m := newTestManager(t, 8)

	value := bytes.Repeat([]byte("x"), 64)
	if err := m.Put("big", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	m.Wait()

	if m.memory.Contains("big") {
		t.Error("value larger than memory should not be held there")
	}
	if got, ok := m.Get("big"); !ok || !bytes.Equal(got, value) {
		t.Error("large value should be served from disk")
	}
}

func TestManager_Cleanup(t *testing.T) {
	m := newTestManager(t, 1024)
	m.config.TTL = time.Millisecond

	_ = m.Put("old", []byte("x"))
	m.Wait()
	time.Sleep(10 * time.Millisecond)
	m.Cleanup()

	if m.Contains("old") {
		t.Error("expired entry survived cleanup")
	}
	if s := m.Stats(); s.CleanupRuns != 1 {
		t.Errorf("CleanupRuns = %d, want 1", s.CleanupRuns)
	}
}

func TestManager_Clear(t *testing.T) {
	m := newTestManager(t, 1024)
	for i := 0; i < 5; i++ {
		_ = m.Put(fmt.Sprintf("k%d", i), []byte("v"))
	}
	if err := m.Clear(); err != nil {
		t.Fatal(err)
	}
	s := m.Stats()
	if s.Memory.Items != 0 || s.Disk.Items != 0 {
		t.Errorf("cache not empty after Clear: %+v", s)
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := newTestManager(t, 1<<16)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				key := fmt.Sprintf("k%d", j%4)
				_ = m.Put(key, []byte(fmt.Sprintf("v%d", id)))
				m.Get(key)
			}
		}(i)
	}
	wg.Wait()
	m.Wait()
	if err := m.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	// closing twice is harmless
	if err := m.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
