package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const indexName = "index.gob"

// DiskCache is the L2 tier: WAV data stored as one file per entry, optionally
// zstd-compressed, with a gob index that survives restarts.
type DiskCache struct {
	dir      string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

// diskEntry is persisted in the index, so its fields are exported.
type diskEntry struct {
	Key          string
	File         string
	Size         int64 // on disk
	OriginalSize int64
	Stored       time.Time
	LastAccess   time.Time
	Hits         int64
	Compressed   bool
}

// NewDiskCache opens (or creates) a disk cache in dir.
func NewDiskCache(dir string, capacity int64, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// Entries written by an earlier run with compression on stay readable.
	var err error
	dc.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	if err := dc.loadIndex(); err != nil {
		log.Warn("Discarding unreadable cache index", "dir", dir, "error", err)
		dc.index = make(map[string]*diskEntry)
	}
	for _, e := range dc.index {
		dc.size += e.Size
	}

	return dc, nil
}

// Get reads and decompresses the value for key.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := dc.read(entry)
	if err != nil {
		log.Debug("Dropping unreadable cache entry", "key", key, "error", err)
		dc.drop(entry)
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	entry.Hits++
	dc.stats.Hits++
	return data, true
}

func (dc *DiskCache) read(entry *diskEntry) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dc.dir, entry.File))
	if err != nil {
		return nil, err
	}
	if entry.Compressed {
		data, err = dc.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCacheCorrupted, err)
		}
	}
	if int64(len(data)) != entry.OriginalSize {
		return nil, ErrCacheCorrupted
	}
	return data, nil
}

// Put writes value for key, evicting least recently accessed entries to make room.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	data, compressed := value, false
	// WAV headers alone are 44 bytes; tiny payloads don't compress.
	if dc.encoder != nil && len(value) > 1024 {
		if packed := dc.encoder.EncodeAll(value, nil); len(packed) < len(value) {
			data, compressed = packed, true
		}
	}

	n := int64(len(data))
	if n > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.index[key]; ok {
		dc.drop(existing)
	}
	for dc.size+n > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	name := fileName(key, compressed)
	if err := writeFileAtomic(filepath.Join(dc.dir, name), data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	dc.index[key] = &diskEntry{
		Key:          key,
		File:         name,
		Size:         n,
		OriginalSize: int64(len(value)),
		Stored:       now,
		LastAccess:   now,
		Compressed:   compressed,
	}
	dc.size += n
	return nil
}

// Delete removes key if present.
func (dc *DiskCache) Delete(key string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if entry, ok := dc.index[key]; ok {
		dc.drop(entry)
	}
}

// Clear removes every entry and persists the empty index.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for _, entry := range dc.index {
		_ = os.Remove(filepath.Join(dc.dir, entry.File))
	}
	dc.index = make(map[string]*diskEntry)
	dc.size = 0
	return dc.saveIndex()
}

// Contains checks for key without touching access time.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	_, ok := dc.index[key]
	return ok
}

// Size returns the bytes used on disk.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.size
}

// Stats returns a snapshot of the counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	s := dc.stats
	s.Capacity = dc.capacity
	s.Size = dc.size
	s.Items = int64(len(dc.index))
	return s
}

// Entries lists entries from least to most recently accessed.
func (dc *DiskCache) Entries() []Entry {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	out := make([]Entry, 0, len(dc.index))
	for _, e := range dc.index {
		out = append(out, Entry{
			Key:        e.Key,
			Size:       e.OriginalSize,
			Stored:     e.Stored,
			LastAccess: e.LastAccess,
			Hits:       e.Hits,
			Level:      LevelDisk,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAccess.Before(out[j].LastAccess) })
	return out
}

// RemoveOlderThan drops entries stored before cutoff.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for _, entry := range dc.index {
		if entry.Stored.Before(cutoff) {
			dc.drop(entry)
			removed++
		}
	}
	return removed
}

// Close persists the index.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.encoder != nil {
		_ = dc.encoder.Close()
	}
	dc.decoder.Close()
	return dc.saveIndex()
}

// drop must be called with the lock held.
func (dc *DiskCache) drop(entry *diskEntry) {
	_ = os.Remove(filepath.Join(dc.dir, entry.File))
	delete(dc.index, entry.Key)
	dc.size -= entry.Size
}

func (dc *DiskCache) evictOldest() {
	var oldest *diskEntry
	for _, e := range dc.index {
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldest = e
		}
	}
	if oldest != nil {
		dc.drop(oldest)
		dc.stats.Evictions++
	}
}

func fileName(key string, compressed bool) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:16]) + ".wav"
	if compressed {
		name += ".zst"
	}
	return name
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.dir, indexName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&dc.index); err != nil {
		return err
	}
	// Forget entries whose files went missing.
	for key, e := range dc.index {
		if _, err := os.Stat(filepath.Join(dc.dir, e.File)); err != nil {
			delete(dc.index, key)
		}
	}
	return nil
}

func (dc *DiskCache) saveIndex() error {
	path := filepath.Join(dc.dir, indexName)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	encErr := gob.NewEncoder(f).Encode(dc.index)
	closeErr := f.Close()
	if err := errors.Join(encErr, closeErr); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
