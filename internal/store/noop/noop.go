package noop

import (
	"time"

	"github.com/pogonboskrupa/sumarija-sub000/internal/models"
	"github.com/pogonboskrupa/sumarija-sub000/internal/store"
)

// Ensure NoOpStore implements store.Store
var _ store.Store = (*NoOpStore)(nil)

// NoOpStore is a stand-in for a disabled store: every read misses, every
// write is discarded.
type NoOpStore struct{}

// New creates a no-operation store instance.
func New() *NoOpStore {
	return &NoOpStore{}
}

// Get always returns a miss.
func (n *NoOpStore) Get(key string) (*models.CacheEntry, bool) {
	return nil, false
}

// GetStale always returns a miss.
func (n *NoOpStore) GetStale(key string) (*models.CacheEntry, bool) {
	return nil, false
}

// Set does nothing.
func (n *NoOpStore) Set(key string, payload []byte, ttl time.Duration) {
	// No-op
}

// Delete does nothing.
func (n *NoOpStore) Delete(key string) {
	// No-op
}

// DeleteMatching does nothing.
func (n *NoOpStore) DeleteMatching(match func(key string) bool) int {
	return 0
}

// DeleteAll does nothing.
func (n *NoOpStore) DeleteAll() {
	// No-op
}
