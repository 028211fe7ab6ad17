package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned by a cache after Close.
	ErrClosed = errors.New("cache is closed")
)

// Level identifies a cache tier.
type Level int

const (
	LevelMemory Level = iota
	LevelDisk
)

func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds the counters of one cache level.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64

	LastAccess time.Time
	LastEvict  time.Time
}

func (s Stats) withRate() Stats {
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// String renders the stats for humans, e.g. "12 items, 3.4 MB of 100 MB, 80% hits".
func (s Stats) String() string {
	out := fmt.Sprintf("%d items, %s of %s",
		s.Items, humanize.Bytes(uint64(s.Size)), humanize.Bytes(uint64(s.Capacity)))
	if s.Hits+s.Misses > 0 {
		out += fmt.Sprintf(", %.0f%% hits", s.HitRate*100)
	}
	if !s.LastAccess.IsZero() {
		out += ", used " + humanize.Time(s.LastAccess)
	}
	return out
}

// Config holds the sizes and location of the cache levels.
type Config struct {
	MemoryCapacity   int64         // bytes
	DiskCapacity     int64         // bytes
	Dir              string        // directory for L2 files
	CompressionLevel int           // zstd level, 0 disables compression
	TTL              time.Duration // entries older than this are pruned, 0 keeps them
	CleanupInterval  time.Duration // 0 disables the background pruning
}

// DefaultConfig returns the default cache configuration. Dir is left empty
// and must be set by the caller.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,
		DiskCapacity:     512 * 1024 * 1024,
		CompressionLevel: 3,
		TTL:              30 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Cache is the surface shared by both levels.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Contains(key string) bool
	Size() int64
	Stats() Stats
}

// Key hashes its parts into a stable cache key. Parts are joined with "|" so
// the key matches the hash the synthesis service computes for the same
// request.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
