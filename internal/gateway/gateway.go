package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pogonboskrupa/sumarija-sub000/internal/metrics"
	"github.com/pogonboskrupa/sumarija-sub000/internal/models"
	"github.com/pogonboskrupa/sumarija-sub000/internal/policy"
	"github.com/pogonboskrupa/sumarija-sub000/internal/store"
)

// Fetcher performs the underlying network call for a resource locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// SignalFunc receives the freshness signal emitted for every fetch,
// intended for a UI indicator.
type SignalFunc func(models.Freshness)

// call is a shared in-flight network fetch; concurrent requests for the
// same key wait on it instead of refetching.
type call struct {
	done    chan struct{}
	payload []byte
	err     error
}

// Gateway is the foreground cache: it consults the persistent store before
// every fetch, refreshes expired entries, and falls back to stale data when
// the network is down. Freshness is always judged against the TTL frozen
// into the entry at write time.
type Gateway struct {
	store    store.Store
	schedule func() policy.PageSchedule
	fetcher  Fetcher
	logger   *zap.Logger
	onSignal SignalFunc
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]*call
}

// Option configures optional Gateway behavior.
type Option func(*Gateway)

// WithSignal registers the freshness signal receiver.
func WithSignal(fn SignalFunc) Option {
	return func(g *Gateway) { g.onSignal = fn }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New creates a gateway over the given store and fetcher. The schedule
// function is consulted on every fetch so hot-reloaded schedules take
// effect immediately.
func New(st store.Store, fetcher Fetcher, schedule func() policy.PageSchedule, logger *zap.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		store:    st,
		schedule: schedule,
		fetcher:  fetcher,
		logger:   logger,
		now:      time.Now,
		inflight: make(map[string]*call),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FetchWithCache resolves a resource, serving from cache while the entry is
// within its write-time TTL and refetching otherwise. On network failure an
// expired entry is served as a last resort. The returned freshness mirrors
// the emitted signal.
func (g *Gateway) FetchWithCache(ctx context.Context, locator, cacheKey string, forceRefresh bool) ([]byte, models.Freshness, error) {
	now := g.now()
	ttl := g.schedule().TTLAt(now)
	metrics.UpdateCurrentTTL("page", ttl.Seconds())
	metrics.RecordCacheRequest("gateway", "smart")

	if forceRefresh {
		g.store.Delete(cacheKey)
	}

	timer := metrics.TimeCacheGetOperation("gateway")
	entry, found := g.store.Get(cacheKey)
	timer()

	if found {
		metrics.RecordCacheHit("gateway", "smart")
		freshness := models.FreshFor(entry, now)
		g.emit(freshness)
		return entry.Payload, freshness, nil
	}

	metrics.RecordCacheMiss("gateway", "smart")

	// Keep the expired entry in hand: it is the fallback if the
	// refetch fails.
	stale, hasStale := g.store.GetStale(cacheKey)

	payload, err := g.fetchShared(ctx, locator, cacheKey, ttl)
	if err != nil {
		var upstream *models.UpstreamError
		if errors.As(err, &upstream) {
			// Valid-but-negative application data: propagate,
			// never cache, never mask with stale data.
			freshness := models.Freshness{State: models.FreshnessNone}
			g.emit(freshness)
			return payload, freshness, err
		}

		if hasStale {
			g.logger.Warn("Network fetch failed, serving stale entry",
				zap.String("key", cacheKey),
				zap.Duration("age", stale.Age(now)),
				zap.Error(err))
			metrics.RecordStaleFallback("gateway")
			freshness := models.StaleFor(stale, now)
			g.emit(freshness)
			return stale.Payload, freshness, nil
		}

		g.logger.Error("Network fetch failed with no cached fallback",
			zap.String("key", cacheKey), zap.Error(err))
		freshness := models.Freshness{State: models.FreshnessNone}
		g.emit(freshness)
		return nil, freshness, err
	}

	freshness := models.Freshness{State: models.FreshnessNone}
	g.emit(freshness)
	return payload, freshness, nil
}

// Invalidate removes every cached year of a view.
func (g *Gateway) Invalidate(view string) int {
	prefix := KeyPrefix(view)
	return g.store.DeleteMatching(func(key string) bool {
		return len(key) >= len(prefix) && key[:len(prefix)] == prefix
	})
}

// Clear empties the gateway store.
func (g *Gateway) Clear() {
	g.store.DeleteAll()
}

// fetchShared deduplicates concurrent fetches per key. The call owner
// performs the network fetch and the store write; followers wait and share
// the result.
func (g *Gateway) fetchShared(ctx context.Context, locator, cacheKey string, ttl time.Duration) ([]byte, error) {
	g.mu.Lock()
	if c, ok := g.inflight[cacheKey]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.payload, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c := &call{done: make(chan struct{})}
	g.inflight[cacheKey] = c
	g.mu.Unlock()

	c.payload, c.err = g.fetcher.Fetch(ctx, locator)

	if c.err == nil {
		g.store.Set(cacheKey, c.payload, ttl)
	}

	g.mu.Lock()
	delete(g.inflight, cacheKey)
	g.mu.Unlock()
	close(c.done)

	return c.payload, c.err
}

func (g *Gateway) emit(freshness models.Freshness) {
	if g.onSignal != nil {
		g.onSignal(freshness)
	}
}
