package store

import (
	"time"

	"github.com/pogonboskrupa/sumarija-sub000/internal/models"
)

//go:generate mockgen -package=mock -source=store.go -destination=mock/store.go

// Store is durable key -> CacheEntry storage. Entries are immutable
// snapshots: they are only ever overwritten by a later write for the same
// key, deleted by key or predicate, or dropped wholesale. There is no
// background eviction; an expired entry remains readable through GetStale
// until one of those triggers fires.
//
// Failure semantics: Get and GetStale treat undecodable stored data as a
// miss. Set never fails the caller; a write the backend rejects (quota,
// oversized value) is logged and dropped while the in-flight response is
// still returned upstream.
type Store interface {
	// Get returns the entry only while it is within the TTL frozen at
	// write time.
	Get(key string) (*models.CacheEntry, bool)
	// GetStale returns the entry regardless of freshness, for
	// stale-if-error fallbacks.
	GetStale(key string) (*models.CacheEntry, bool)
	// Set stores payload stamped with the write time and the TTL the
	// policy computed for this write.
	Set(key string, payload []byte, ttl time.Duration)
	// Delete removes a single entry.
	Delete(key string)
	// DeleteMatching removes every entry whose key satisfies the
	// predicate and returns how many were removed.
	DeleteMatching(match func(key string) bool) int
	// DeleteAll drops every entry in the store.
	DeleteAll()
}
