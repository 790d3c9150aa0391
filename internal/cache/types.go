package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when a stored entry cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Level represents the cache tier
type Level int

const (
	// LevelMemory is the in-process LRU (L1)
	LevelMemory Level = iota

	// LevelDisk is the compressed on-disk store (L2)
	LevelDisk
)

// String returns the string representation of the cache level
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

// Stats holds counters for a single cache tier.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Entry describes a stored item without its payload.
type Entry struct {
	Key        string
	Size       int64
	Stored     time.Time
	LastAccess time.Time
	Hits       int64
	Level      Level
}

// Config holds configuration for a Store.
type Config struct {
	MemoryCapacity int64 // bytes; 0 disables L1

	DiskCapacity     int64  // bytes; 0 disables L2
	DiskPath         string // directory for cache files
	CompressionLevel int    // zstd level (1-22); 0 stores raw WAV

	// TTL drops entries older than this on Prune. Zero keeps entries forever.
	TTL time.Duration
}

// DefaultConfig returns default cache configuration. DiskPath is left for the
// caller to fill in.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,  // 64MB
		DiskCapacity:     512 * 1024 * 1024, // 512MB
		CompressionLevel: 3,
		TTL:              30 * 24 * time.Hour,
	}
}

// Kind distinguishes what a cached WAV was rendered from.
type Kind string

const (
	// KindTTS entries were rendered straight from text.
	KindTTS Kind = "tts"
	// KindSynthesis entries were rendered from an encoded audio query.
	KindSynthesis Kind = "synthesis"
)

// Key derives a stable cache key for a rendering of payload by speakerID.
// Payload is the input text for KindTTS and the encoded query for KindSynthesis;
// options is any extra discriminator (e.g. "kana=1,upspeak=0").
func Key(kind Kind, speakerID uint32, options string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	var id [4]byte
	binary.BigEndian.PutUint32(id[:], speakerID)
	h.Write(id[:])
	h.Write([]byte(options))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)[:16])
}
