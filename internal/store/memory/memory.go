package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"

	"github.com/pogonboskrupa/sumarija-sub000/internal/metrics"
	"github.com/pogonboskrupa/sumarija-sub000/internal/models"
	"github.com/pogonboskrupa/sumarija-sub000/internal/store"
)

// Ensure MemoryStore implements store.Store
var _ store.Store = (*MemoryStore)(nil)

// MemoryStore keeps cache entries in a sharded in-memory cache. The
// retention window bounds how long an expired entry stays reachable for
// stale fallbacks; freshness itself is judged per entry from its frozen TTL.
type MemoryStore struct {
	cache  *bigcache.BigCache
	logger *zap.Logger
}

// New creates a MemoryStore with the given hard size cap in MB and
// retention window.
func New(sizeMB int, retention time.Duration, logger *zap.Logger) (*MemoryStore, error) {
	cfg := bigcache.DefaultConfig(retention)
	cfg.HardMaxCacheSize = sizeMB
	cfg.Verbose = false
	cfg.MaxEntrySize = 1024 * 1024

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	return &MemoryStore{
		cache:  cache,
		logger: logger,
	}, nil
}

// Get retrieves an entry while it is still within its write-time TTL.
func (ms *MemoryStore) Get(key string) (*models.CacheEntry, bool) {
	entry, ok := ms.decode(key)
	if !ok {
		return nil, false
	}

	if !entry.IsFresh(time.Now()) {
		// Expired entries stay in place as fallback material.
		return nil, false
	}

	return entry, true
}

// GetStale retrieves an entry regardless of freshness.
func (ms *MemoryStore) GetStale(key string) (*models.CacheEntry, bool) {
	return ms.decode(key)
}

// Set stores payload stamped with the current time and the given TTL.
// Write failures are logged and dropped, never surfaced to the caller.
func (ms *MemoryStore) Set(key string, payload []byte, ttl time.Duration) {
	entry := models.NewCacheEntry(payload, time.Now(), ttl)

	data, err := json.Marshal(entry)
	if err != nil {
		ms.logger.Error("Failed to marshal cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordStoreError("memory", "encode")
		return
	}

	if err := ms.cache.Set(key, data); err != nil {
		ms.logger.Warn("Dropped cache write", zap.String("key", key), zap.Error(err))
		metrics.RecordStoreError("memory", "quota")
		return
	}
}

// Delete removes a single entry.
func (ms *MemoryStore) Delete(key string) {
	if err := ms.cache.Delete(key); err != nil {
		return
	}
}

// DeleteMatching removes every entry whose key satisfies the predicate.
func (ms *MemoryStore) DeleteMatching(match func(key string) bool) int {
	var keys []string
	it := ms.cache.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		if match(info.Key()) {
			keys = append(keys, info.Key())
		}
	}

	deleted := 0
	for _, key := range keys {
		if err := ms.cache.Delete(key); err == nil {
			deleted++
		}
	}
	return deleted
}

// DeleteAll drops every entry.
func (ms *MemoryStore) DeleteAll() {
	if err := ms.cache.Reset(); err != nil {
		ms.logger.Error("Failed to reset memory store", zap.Error(err))
	}
}

// Close releases the underlying cache.
func (ms *MemoryStore) Close() error {
	return ms.cache.Close()
}

// Stats returns capacity and entry count for metrics.
func (ms *MemoryStore) Stats() (capacityBytes int64, entries int64) {
	return int64(ms.cache.Capacity()), int64(ms.cache.Len())
}

// decode reads and unmarshals an entry, treating corrupted data as a miss.
func (ms *MemoryStore) decode(key string) (*models.CacheEntry, bool) {
	data, err := ms.cache.Get(key)
	if err != nil {
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		ms.logger.Warn("Failed to unmarshal cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordStoreError("memory", "decode")
		ms.Delete(key)
		return nil, false
	}

	return &entry, true
}
