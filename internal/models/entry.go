package models

import (
	"time"
)

// CacheEntry is the stored form of a cached response. The TTL that was in
// effect when the entry was written is frozen alongside the payload, so
// freshness is always judged against the policy at write time, never against
// a later re-evaluation of the schedule.
type CacheEntry struct {
	Payload      []byte `json:"payload"`
	StoredAtMs   int64  `json:"stored_at_ms"`
	TTLAtWriteMs int64  `json:"ttl_at_write_ms"`
}

// NewCacheEntry creates an entry stamped with the given write time and the
// TTL computed by the active schedule at that moment.
func NewCacheEntry(payload []byte, storedAt time.Time, ttl time.Duration) CacheEntry {
	return CacheEntry{
		Payload:      payload,
		StoredAtMs:   storedAt.UnixMilli(),
		TTLAtWriteMs: ttl.Milliseconds(),
	}
}

// Age returns how long ago the entry was written.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-e.StoredAtMs) * time.Millisecond
}

// IsFresh reports whether the entry is still within the TTL captured at
// write time. Past that bound the entry is only usable as a stale fallback.
func (e *CacheEntry) IsFresh(now time.Time) bool {
	return now.UnixMilli()-e.StoredAtMs < e.TTLAtWriteMs
}

// FreshnessState classifies how a payload was served.
type FreshnessState string

const (
	FreshnessFresh FreshnessState = "fresh" // served from cache within TTL
	FreshnessStale FreshnessState = "stale" // expired entry served as fallback
	FreshnessNone  FreshnessState = "none"  // served straight from the network
)

// Freshness is the observable signal emitted per gateway fetch, intended
// for a UI indicator.
type Freshness struct {
	State FreshnessState `json:"state"`
	AgeMs int64          `json:"age_ms,omitempty"`
}

// FreshFor builds a fresh-with-age signal for a cache hit.
func FreshFor(entry *CacheEntry, now time.Time) Freshness {
	return Freshness{State: FreshnessFresh, AgeMs: entry.Age(now).Milliseconds()}
}

// StaleFor builds a stale-with-age signal for a fallback serve.
func StaleFor(entry *CacheEntry, now time.Time) Freshness {
	return Freshness{State: FreshnessStale, AgeMs: entry.Age(now).Milliseconds()}
}

// CacheInfo is the reply to a GET_CACHE_INFO control message.
type CacheInfo struct {
	Generation string `json:"generation"`
	TTLMs      int64  `json:"ttl_ms"`
}
