package keydb

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/pogonboskrupa/sumarija-sub000/internal/config"
	"github.com/pogonboskrupa/sumarija-sub000/internal/metrics"
	"github.com/pogonboskrupa/sumarija-sub000/internal/models"
	"github.com/pogonboskrupa/sumarija-sub000/internal/store"
)

// Ensure KeyDBStore implements store.Store
var _ store.Store = (*KeyDBStore)(nil)

// KeyDBStore is the durable store backing the report gateway. All keys live
// under a namespace prefix so DeleteAll and predicate deletes never touch
// other tenants of the same KeyDB instance. Values are written without a
// server-side expiry: expired entries must stay around as stale fallbacks
// until an explicit delete or overwrite.
type KeyDBStore struct {
	client    Client
	namespace string
	cfg       *config.KeyDBConfig
	logger    *zap.Logger
}

// New creates a KeyDBStore scoped to the given namespace.
func New(cfg *config.KeyDBConfig, client Client, logger *zap.Logger) *KeyDBStore {
	return &KeyDBStore{
		client:    client,
		namespace: cfg.Namespace,
		cfg:       cfg,
		logger:    logger,
	}
}

// Get retrieves an entry while it is still within its write-time TTL.
func (ks *KeyDBStore) Get(key string) (*models.CacheEntry, bool) {
	entry, ok := ks.decode(key)
	if !ok {
		return nil, false
	}

	if !entry.IsFresh(time.Now()) {
		return nil, false
	}

	return entry, true
}

// GetStale retrieves an entry regardless of freshness.
func (ks *KeyDBStore) GetStale(key string) (*models.CacheEntry, bool) {
	return ks.decode(key)
}

// Set stores payload stamped with the current time and the given TTL.
func (ks *KeyDBStore) Set(key string, payload []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), ks.cfg.WriteTimeout)
	defer cancel()

	entry := models.NewCacheEntry(payload, time.Now(), ttl)

	data, err := json.Marshal(entry)
	if err != nil {
		ks.logger.Error("Failed to marshal cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordStoreError("keydb", "encode")
		return
	}

	if err := ks.client.Set(ctx, ks.namespace+key, data, 0).Err(); err != nil {
		ks.logger.Warn("Dropped cache write", zap.String("key", key), zap.Error(err))
		metrics.RecordStoreError("keydb", "quota")
		return
	}
}

// Delete removes a single entry.
func (ks *KeyDBStore) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), ks.cfg.WriteTimeout)
	defer cancel()

	if err := ks.client.Del(ctx, ks.namespace+key).Err(); err != nil {
		ks.logger.Error("Failed to delete cache entry", zap.String("key", key), zap.Error(err))
	}
}

// DeleteMatching removes every entry whose key satisfies the predicate.
// The predicate sees keys without the namespace prefix.
func (ks *KeyDBStore) DeleteMatching(match func(key string) bool) int {
	deleted := 0
	for _, key := range ks.scanKeys() {
		if !match(key) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), ks.cfg.WriteTimeout)
		err := ks.client.Del(ctx, ks.namespace+key).Err()
		cancel()
		if err != nil {
			ks.logger.Error("Failed to delete cache entry", zap.String("key", key), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted
}

// DeleteAll drops every entry in the namespace.
func (ks *KeyDBStore) DeleteAll() {
	for _, key := range ks.scanKeys() {
		ctx, cancel := context.WithTimeout(context.Background(), ks.cfg.WriteTimeout)
		err := ks.client.Del(ctx, ks.namespace+key).Err()
		cancel()
		if err != nil {
			ks.logger.Error("Failed to delete cache entry", zap.String("key", key), zap.Error(err))
		}
	}
}

// Close closes the underlying client connection.
func (ks *KeyDBStore) Close() error {
	return ks.client.Close()
}

// scanKeys enumerates all namespace keys, stripped of the prefix.
func (ks *KeyDBStore) scanKeys() []string {
	ctx, cancel := context.WithTimeout(context.Background(), ks.cfg.ReadTimeout)
	defer cancel()

	var keys []string
	var cursor uint64
	for {
		batch, next, err := ks.client.Scan(ctx, cursor, ks.namespace+"*", 100).Result()
		if err != nil {
			ks.logger.Error("Failed to scan cache keys", zap.Error(err))
			return keys
		}
		for _, key := range batch {
			keys = append(keys, key[len(ks.namespace):])
		}
		cursor = next
		if cursor == 0 {
			return keys
		}
	}
}

// decode reads and unmarshals an entry, treating corrupted data as a miss.
func (ks *KeyDBStore) decode(key string) (*models.CacheEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), ks.cfg.ReadTimeout)
	defer cancel()

	data, err := ks.client.Get(ctx, ks.namespace+key).Result()
	if err != nil {
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		ks.logger.Warn("Failed to unmarshal cache entry", zap.String("key", key), zap.Error(err))
		metrics.RecordStoreError("keydb", "decode")
		ks.Delete(key)
		return nil, false
	}

	return &entry, true
}
