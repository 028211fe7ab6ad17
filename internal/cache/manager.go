package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager stacks the memory level on top of the disk level. Reads that hit
// the disk are promoted to memory; writes go to both, the disk one in the
// background.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache
	config Config
	logger *log.Logger

	writes   sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
	loop     sync.WaitGroup

	mu    sync.Mutex
	stats ManagerStats
}

// ManagerStats aggregates both levels.
type ManagerStats struct {
	Hits        int64
	Misses      int64
	MemoryHits  int64
	DiskHits    int64
	Promotions  int64
	CleanupRuns int64
	LastCleanup time.Time
	HitRate     float64

	Memory Stats
	Disk   Stats
}

// NewManager opens both cache levels.
func NewManager(config Config, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}
	disk, err := NewDiskCache(config.Dir, config.DiskCapacity, config.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}

	m := &Manager{
		memory: NewMemoryCache(config.MemoryCapacity),
		disk:   disk,
		config: config,
		logger: logger.WithPrefix("cache"),
		stop:   make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		m.loop.Add(1)
		go m.cleanupLoop()
	}
	return m, nil
}

// Get looks in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.memory.Get(key); ok {
		m.count(func(s *ManagerStats) { s.Hits++; s.MemoryHits++ })
		return data, true
	}
	if data, ok := m.disk.Get(key); ok {
		_ = m.memory.Put(key, data)
		m.count(func(s *ManagerStats) { s.Hits++; s.DiskHits++; s.Promotions++ })
		return data, true
	}
	m.count(func(s *ManagerStats) { s.Misses++ })
	return nil, false
}

// Put stores value in memory and schedules the disk write. Values too large
// for memory still go to disk.
func (m *Manager) Put(key string, value []byte) error {
	if err := m.memory.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("memory cache: %w", err)
	}

	m.writes.Add(1)
	go func() {
		defer m.writes.Done()
		if err := m.disk.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) && !errors.Is(err, ErrClosed) {
			m.logger.Warn("Disk write failed", "key", key[:min(12, len(key))], "err", err)
		}
	}()
	return nil
}

// Wait blocks until pending disk writes are done.
func (m *Manager) Wait() {
	m.writes.Wait()
}

// Delete removes key from both levels.
func (m *Manager) Delete(key string) error {
	m.writes.Wait()
	return errors.Join(m.memory.Delete(key), m.disk.Delete(key))
}

// Clear empties both levels.
func (m *Manager) Clear() error {
	m.writes.Wait()
	return errors.Join(m.memory.Clear(), m.disk.Clear())
}

// Contains reports whether either level holds key.
func (m *Manager) Contains(key string) bool {
	return m.memory.Contains(key) || m.disk.Contains(key)
}

// Stats returns the aggregated counters.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	s := m.stats
	m.mu.Unlock()

	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	s.Memory = m.memory.Stats()
	s.Disk = m.disk.Stats()
	return s
}

// Cleanup prunes entries older than the configured TTL and saves the index.
func (m *Manager) Cleanup() {
	m.count(func(s *ManagerStats) { s.CleanupRuns++; s.LastCleanup = time.Now() })

	if m.config.TTL > 0 {
		if n := m.disk.RemoveOlderThan(time.Now().Add(-m.config.TTL)); n > 0 {
			m.logger.Debug("Pruned disk cache", "entries", n)
		}
		m.memory.Prune(m.config.TTL)
	}
	if err := m.disk.Flush(); err != nil {
		m.logger.Warn("Saving cache index failed", "err", err)
	}
}

// Close waits for pending writes and saves the disk index.
func (m *Manager) Close() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.stop)
		m.loop.Wait()
		m.writes.Wait()
		if cerr := m.disk.Close(); cerr != nil {
			err = fmt.Errorf("failed to close disk cache: %w", cerr)
		}
	})
	return err
}

func (m *Manager) count(fn func(*ManagerStats)) {
	m.mu.Lock()
	fn(&m.stats)
	m.mu.Unlock()
}

func (m *Manager) cleanupLoop() {
	defer m.loop.Done()
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stop:
			return
		}
	}
}
