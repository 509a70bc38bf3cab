// Package cache provides the TTL response cache for the transit client.
package cache

import (
	"context"
	"encoding/json"
	"time"

	transit "github.com/transitwatch/busbridge/internal"
)

// Entry is one cached settlement: the upstream payload plus the provenance
// metadata it settled with. Entries are replaced on the next successful
// fetch for the key, never mutated in place.
type Entry struct {
	Payload   json.RawMessage
	Meta      transit.Meta
	ExpiresAt time.Time
}

// Store is the interface for response caching.
type Store interface {
	// Get retrieves an entry if present and not expired.
	Get(ctx context.Context, key string) (Entry, bool)
	// Set stores an entry with the given TTL, replacing any existing one.
	Set(ctx context.Context, key string, e Entry, ttl time.Duration)
	// Invalidate removes a single entry.
	Invalidate(ctx context.Context, key string)
	// InvalidateMatching removes all entries whose key matches the predicate.
	InvalidateMatching(ctx context.Context, match func(key string) bool)
	// Purge removes all entries.
	Purge(ctx context.Context)
}
