// Package cache holds stage artifacts keyed by input checksum so a rerun
// over identical input can skip the external call. The cache is an
// optimization layer over the durable store: a miss is never an error, and
// a cache failure degrades to recomputation.
package cache

import (
	"context"
	"sync"
	"time"
)

// ArtifactCache stores serialized stage outputs keyed by stage and input
// checksum.
type ArtifactCache interface {
	// Get returns the cached payload, or ok=false on a miss.
	Get(ctx context.Context, stage, inputChecksum string) (payload []byte, ok bool, err error)
	// Put stores the payload. A ttl of 0 means no expiration.
	Put(ctx context.Context, stage, inputChecksum string, payload []byte, ttl time.Duration) error
}

// Key builds the cache key for a stage and input checksum.
func Key(stage, inputChecksum string) string {
	return stage + ":" + inputChecksum
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryCache is an in-process ArtifactCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get returns the cached payload, honoring expiry.
func (c *MemoryCache) Get(_ context.Context, stage, inputChecksum string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[Key(stage, inputChecksum)]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, Key(stage, inputChecksum))
		c.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.payload...), true, nil
}

// Put stores the payload with an optional ttl.
func (c *MemoryCache) Put(_ context.Context, stage, inputChecksum string, payload []byte, ttl time.Duration) error {
	e := memoryEntry{payload: append([]byte(nil), payload...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[Key(stage, inputChecksum)] = e
	c.mu.Unlock()
	return nil
}

var _ ArtifactCache = (*MemoryCache)(nil)
