package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pogonboskrupa/sumarija-sub000/internal/metrics"
	"github.com/pogonboskrupa/sumarija-sub000/internal/models"
	"github.com/pogonboskrupa/sumarija-sub000/internal/policy"
	"github.com/pogonboskrupa/sumarija-sub000/internal/store"
)

// storedResponse is the cached form of an intercepted HTTP response.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Proxy transparently intercepts outgoing GET requests. Requests to the
// configured API hosts go through the smart TTL strategy; everything else
// is cached cache-first as an immutable static asset. All entries live
// under the current cache generation tag so a version bump retires them
// wholesale during activation.
type Proxy struct {
	store      store.Store
	schedule   func() policy.WorkerSchedule
	generation string
	apiHosts   map[string]struct{}
	precache   []string
	upstream   *http.Client
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	activated bool
}

// Option configures optional Proxy behavior.
type Option func(*Proxy)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Proxy) { p.now = now }
}

// WithUpstreamClient overrides the HTTP client used for network fetches.
func WithUpstreamClient(client *http.Client) Option {
	return func(p *Proxy) { p.upstream = client }
}

// New creates a proxy for the given generation tag. apiHosts selects which
// hosts get the smart strategy; precache lists asset URLs populated during
// Install.
func New(st store.Store, schedule func() policy.WorkerSchedule, generation string, apiHosts, precache []string, logger *zap.Logger, opts ...Option) *Proxy {
	hosts := make(map[string]struct{}, len(apiHosts))
	for _, h := range apiHosts {
		hosts[h] = struct{}{}
	}

	p := &Proxy{
		store:      st,
		schedule:   schedule,
		generation: generation,
		apiHosts:   hosts,
		precache:   precache,
		upstream:   &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Install pre-populates the store with the always-needed static assets.
// Individual fetch failures are logged and skipped so one missing asset
// cannot block installation.
func (p *Proxy) Install(ctx context.Context) {
	for _, asset := range p.precache {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset, nil)
		if err != nil {
			p.logger.Warn("Skipping precache asset", zap.String("url", asset), zap.Error(err))
			continue
		}
		resp, err := p.upstream.Do(req)
		if err != nil {
			p.logger.Warn("Failed to precache asset", zap.String("url", asset), zap.Error(err))
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			p.logger.Warn("Failed to precache asset", zap.String("url", asset), zap.Int("status", resp.StatusCode))
			continue
		}
		p.cacheResponse(p.key(asset), resp.StatusCode, resp.Header.Get("Content-Type"), body, 0)
	}
	p.logger.Info("Install phase complete", zap.Int("precached", len(p.precache)))
}

// Activate prunes every cache generation whose tag does not match the
// current version and marks the proxy as controlling. Returns the number of
// pruned entries.
func (p *Proxy) Activate() int {
	prefix := p.generation + "|"
	pruned := p.store.DeleteMatching(func(key string) bool {
		return !strings.HasPrefix(key, prefix)
	})

	p.mu.Lock()
	p.activated = true
	p.mu.Unlock()

	p.logger.Info("Activate phase complete",
		zap.String("generation", p.generation),
		zap.Int("pruned", pruned))
	return pruned
}

// SkipWaiting forces immediate activation. Idempotent.
func (p *Proxy) SkipWaiting() int {
	p.mu.Lock()
	already := p.activated
	p.mu.Unlock()
	if already {
		return 0
	}
	return p.Activate()
}

// ClearGeneration deletes the current generation's entries; subsequent
// requests repopulate them.
func (p *Proxy) ClearGeneration() int {
	prefix := p.generation + "|"
	return p.store.DeleteMatching(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// Info answers the cache introspection query.
func (p *Proxy) Info() models.CacheInfo {
	return models.CacheInfo{
		Generation: p.generation,
		TTLMs:      p.schedule().TTLAt(p.now()).Milliseconds(),
	}
}

// ServeHTTP intercepts a request. Every path resolves to either a real
// response or a synthetic error response; an escaped panic here would break
// all networking for the pages this proxy controls.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("Recovered panic in fetch handling", zap.Any("panic", rec))
			p.syntheticJSON(w, fmt.Sprintf("internal failure: %v", rec))
		}
	}()

	if r.Method != http.MethodGet {
		p.passThrough(w, r)
		return
	}

	if p.isAPIHost(r) {
		p.serveSmart(w, r)
		return
	}
	p.serveStatic(w, r)
}

// serveSmart applies the smart TTL strategy for API host requests.
func (p *Proxy) serveSmart(w http.ResponseWriter, r *http.Request) {
	key := p.key(targetURL(r))
	metrics.RecordCacheRequest("proxy", "smart")

	timer := metrics.TimeCacheGetOperation("proxy")
	entry, found := p.store.Get(key)
	timer()

	if found {
		metrics.RecordCacheHit("proxy", "smart")
		p.replay(w, entry)
		return
	}
	metrics.RecordCacheMiss("proxy", "smart")

	status, contentType, body, err := p.fetchUpstream(r)
	if err != nil {
		if stale, ok := p.store.GetStale(key); ok {
			p.logger.Warn("Upstream unreachable, serving cached response",
				zap.String("url", targetURL(r)), zap.Error(err))
			metrics.RecordStaleFallback("proxy")
			p.replay(w, stale)
			return
		}
		metrics.RecordSyntheticResponse("smart")
		p.syntheticJSON(w, "offline and no cached copy available")
		return
	}

	if status == http.StatusOK {
		ttl := p.schedule().TTLAt(p.now())
		metrics.UpdateCurrentTTL("worker", ttl.Seconds())
		p.cacheResponse(key, status, contentType, body, ttl)
	}
	writeResponse(w, status, contentType, body)
}

// serveStatic applies the cache-first strategy: anything cached is served
// without a TTL check, static assets being immutable per generation.
func (p *Proxy) serveStatic(w http.ResponseWriter, r *http.Request) {
	key := p.key(targetURL(r))
	metrics.RecordCacheRequest("proxy", "static")

	if entry, ok := p.store.GetStale(key); ok {
		metrics.RecordCacheHit("proxy", "static")
		p.replay(w, entry)
		return
	}
	metrics.RecordCacheMiss("proxy", "static")

	status, contentType, body, err := p.fetchUpstream(r)
	if err != nil {
		metrics.RecordSyntheticResponse("static")
		p.syntheticText(w)
		return
	}

	if status == http.StatusOK {
		p.cacheResponse(key, status, contentType, body, 0)
	}
	writeResponse(w, status, contentType, body)
}

// passThrough forwards a non-GET request without caching.
func (p *Proxy) passThrough(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL(r), r.Body)
	if err != nil {
		p.syntheticJSON(w, "invalid request")
		return
	}
	req.Header = r.Header.Clone()

	resp, err := p.upstream.Do(req)
	if err != nil {
		p.syntheticJSON(w, "offline")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// fetchUpstream performs the real network fetch for an intercepted GET.
func (p *Proxy) fetchUpstream(r *http.Request) (status int, contentType string, body []byte, err error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, targetURL(r), nil)
	if err != nil {
		return 0, "", nil, err
	}
	req.Header = r.Header.Clone()

	resp, err := p.upstream.Do(req)
	if err != nil {
		return 0, "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", nil, err
	}

	return resp.StatusCode, resp.Header.Get("Content-Type"), body, nil
}

// cacheResponse stores a response envelope under the generation namespace.
func (p *Proxy) cacheResponse(key string, status int, contentType string, body []byte, ttl time.Duration) {
	envelope := storedResponse{
		Status:      status,
		ContentType: contentType,
		Body:        body,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Error("Failed to marshal response envelope", zap.String("key", key), zap.Error(err))
		return
	}
	p.store.Set(key, data, ttl)
}

// replay writes a cached response envelope back to the client.
func (p *Proxy) replay(w http.ResponseWriter, entry *models.CacheEntry) {
	var envelope storedResponse
	if err := json.Unmarshal(entry.Payload, &envelope); err != nil {
		p.logger.Error("Failed to unmarshal response envelope", zap.Error(err))
		p.syntheticJSON(w, "corrupted cache entry")
		return
	}
	writeResponse(w, envelope.Status, envelope.ContentType, envelope.Body)
}

// syntheticJSON writes the offline-with-no-cache reply for API requests.
func (p *Proxy) syntheticJSON(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   message,
		"offline": true,
	})
}

// syntheticText writes the offline reply for static asset requests.
func (p *Proxy) syntheticText(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("offline and not cached"))
}

// key namespaces a request URL under the current generation.
func (p *Proxy) key(url string) string {
	return p.generation + "|" + url
}

func (p *Proxy) isAPIHost(r *http.Request) bool {
	host := r.URL.Host
	if host == "" {
		host = r.Host
	}
	_, ok := p.apiHosts[host]
	return ok
}

func writeResponse(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// targetURL reconstructs the absolute URL of an intercepted request.
func targetURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
