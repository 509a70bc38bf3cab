package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// Memory is an in-memory W-TinyLFU cache backed by otter.
//
// Expiry is checked lazily on Get against the entry's own ExpiresAt; the
// otter-level default TTL only bounds how long dead entries can linger.
type Memory struct {
	cache *otter.Cache[string, Entry]
}

var _ Store = (*Memory)(nil)

// NewMemory creates an in-memory cache with the given max entry count and
// default TTL.
func NewMemory(maxSize int, defaultTTL time.Duration) (*Memory, error) {
	c, err := otter.New[string, Entry](&otter.Options[string, Entry]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, Entry](defaultTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Memory{cache: c}, nil
}

// Get retrieves an entry from the cache if present and not expired.
func (m *Memory) Get(_ context.Context, key string) (Entry, bool) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		return Entry{}, false
	}
	if time.Now().After(e.ExpiresAt) {
		m.cache.Invalidate(key)
		return Entry{}, false
	}
	return e, true
}

// Set stores an entry with per-entry TTL.
func (m *Memory) Set(_ context.Context, key string, e Entry, ttl time.Duration) {
	e.ExpiresAt = time.Now().Add(ttl)
	m.cache.Set(key, e)
}

// Invalidate removes a single entry from the cache.
func (m *Memory) Invalidate(_ context.Context, key string) {
	m.cache.Invalidate(key)
}

// InvalidateMatching removes all entries whose key matches the predicate.
func (m *Memory) InvalidateMatching(_ context.Context, match func(key string) bool) {
	var doomed []string
	for key := range m.cache.All() {
		if match(key) {
			doomed = append(doomed, key)
		}
	}
	for _, key := range doomed {
		m.cache.Invalidate(key)
	}
}

// Purge removes all entries from the cache.
func (m *Memory) Purge(_ context.Context) {
	m.cache.InvalidateAll()
}
