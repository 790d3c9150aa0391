package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Store coordinates the memory and disk tiers. Lookups go L1 then L2, and an
// L2 hit is promoted into L1. Either tier may be disabled by giving it zero
// capacity.
type Store struct {
	memory *MemoryCache
	disk   *DiskCache
	ttl    time.Duration

	mu         sync.Mutex
	promotions int64
}

// Open builds a Store from cfg.
func Open(cfg Config) (*Store, error) {
	s := &Store{ttl: cfg.TTL}

	if cfg.MemoryCapacity > 0 {
		s.memory = NewMemoryCache(cfg.MemoryCapacity)
	}

	if cfg.DiskCapacity > 0 {
		if cfg.DiskPath == "" {
			return nil, errors.New("cache: disk capacity set without a disk path")
		}
		disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		s.disk = disk
	}

	if s.ttl > 0 {
		if n := s.Prune(); n > 0 {
			log.Debug("Pruned expired cache entries", "count", n)
		}
	}

	return s, nil
}

// Get looks key up in each tier in turn.
func (s *Store) Get(key string) ([]byte, Level, bool) {
	if s.memory != nil {
		if data, ok := s.memory.Get(key); ok {
			return data, LevelMemory, true
		}
	}

	if s.disk != nil {
		if data, ok := s.disk.Get(key); ok {
			if s.memory != nil {
				// Best effort: an oversized entry simply stays on disk.
				if err := s.memory.Put(key, data); err == nil {
					s.mu.Lock()
					s.promotions++
					s.mu.Unlock()
				}
			}
			return data, LevelDisk, true
		}
	}

	return nil, 0, false
}

// Put stores value in every enabled tier. Items too large for one tier are
// still written to the others; ErrItemTooLarge is only returned when no tier
// took the value.
func (s *Store) Put(key string, value []byte) error {
	stored := false

	if s.memory != nil {
		switch err := s.memory.Put(key, value); {
		case err == nil:
			stored = true
		case !errors.Is(err, ErrItemTooLarge):
			return fmt.Errorf("memory cache: %w", err)
		}
	}

	if s.disk != nil {
		switch err := s.disk.Put(key, value); {
		case err == nil:
			stored = true
		case !errors.Is(err, ErrItemTooLarge):
			log.Warn("Failed to write disk cache entry", "key", key, "error", err)
		}
	}

	if !stored && (s.memory != nil || s.disk != nil) {
		return ErrItemTooLarge
	}
	return nil
}

// Delete removes key from every tier.
func (s *Store) Delete(key string) {
	if s.memory != nil {
		s.memory.Delete(key)
	}
	if s.disk != nil {
		s.disk.Delete(key)
	}
}

// Clear empties every tier.
func (s *Store) Clear() error {
	if s.memory != nil {
		s.memory.Clear()
	}
	if s.disk != nil {
		if err := s.disk.Clear(); err != nil {
			return fmt.Errorf("disk cache: %w", err)
		}
	}
	return nil
}

// Prune drops entries older than the configured TTL and returns the number
// removed across tiers.
func (s *Store) Prune() int {
	if s.ttl <= 0 {
		return 0
	}
	n := 0
	if s.memory != nil {
		n += s.memory.Prune(s.ttl)
	}
	if s.disk != nil {
		n += s.disk.RemoveOlderThan(time.Now().Add(-s.ttl))
	}
	return n
}

// Summary aggregates the counters of both tiers.
type Summary struct {
	Memory     Stats
	Disk       Stats
	Promotions int64
}

// Stats returns per-tier counters.
func (s *Store) Stats() Summary {
	var sum Summary
	if s.memory != nil {
		sum.Memory = s.memory.Stats()
	}
	if s.disk != nil {
		sum.Disk = s.disk.Stats()
	}
	s.mu.Lock()
	sum.Promotions = s.promotions
	s.mu.Unlock()
	return sum
}

// Entries lists the entries on disk, least recently used first.
func (s *Store) Entries() []Entry {
	if s.disk == nil {
		if s.memory == nil {
			return nil
		}
		return s.memory.Entries()
	}
	return s.disk.Entries()
}

// Close persists the disk index.
func (s *Store) Close() error {
	if s.disk == nil {
		return nil
	}
	if err := s.disk.Close(); err != nil {
		return fmt.Errorf("failed to close disk cache: %w", err)
	}
	return nil
}
