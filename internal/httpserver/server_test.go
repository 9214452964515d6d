package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pogonboskrupa/sumarija-sub000/internal/fetcher"
	"github.com/pogonboskrupa/sumarija-sub000/internal/gateway"
	"github.com/pogonboskrupa/sumarija-sub000/internal/models"
	"github.com/pogonboskrupa/sumarija-sub000/internal/policy"
	"github.com/pogonboskrupa/sumarija-sub000/internal/proxy"
)

// mapStore implements store.Store over a plain map.
type mapStore struct {
	mu      sync.Mutex
	entries map[string]models.CacheEntry
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[string]models.CacheEntry)}
}

func (m *mapStore) Get(key string) (*models.CacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || !entry.IsFresh(time.Now()) {
		return nil, false
	}
	return &entry, true
}

func (m *mapStore) GetStale(key string) (*models.CacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	return &entry, true
}

func (m *mapStore) Set(key string, payload []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = models.NewCacheEntry(payload, time.Now(), ttl)
}

func (m *mapStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *mapStore) DeleteMatching(match func(key string) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for key := range m.entries {
		if match(key) {
			delete(m.entries, key)
			deleted++
		}
	}
	return deleted
}

func (m *mapStore) DeleteAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]models.CacheEntry)
}

// newTestServer wires the full router against an httptest upstream that
// serves the given handler.
func newTestServer(t *testing.T, upstream http.Handler) (*Server, *httptest.Server) {
	t.Helper()

	remote := httptest.NewServer(upstream)
	t.Cleanup(remote.Close)

	logger := zap.NewNop()
	schedules := policy.Default()

	client := fetcher.NewClient(remote.URL, 5*time.Second, logger)
	gw := gateway.New(newMapStore(), client,
		func() policy.PageSchedule { return schedules.Page }, logger)

	px := proxy.New(newMapStore(),
		func() policy.WorkerSchedule { return schedules.Worker },
		"app-cache-v1", nil, nil, logger)

	session := fetcher.Session{Username: "lugar", Password: "tajna"}
	reports := NewReportHandler(gw, client, session, logger)

	return NewServer(gw, px, reports, logger), remote
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestReportEndpoint_MissThenFreshHit(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sjeca", r.URL.Query().Get("path"))
		assert.Equal(t, "lugar", r.URL.Query().Get("username"))
		assert.Equal(t, "2026", r.URL.Query().Get("year"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rows":[{"odjel":"12a"}]}`))
	}))
	router := srv.createRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/sjeca?year=2026", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "none", rec.Header().Get("X-Cache-Freshness"))
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/sjeca?year=2026", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fresh", rec.Header().Get("X-Cache-Freshness"))
}

func TestReportEndpoint_InvalidYear(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	router := srv.createRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/sjeca?year=letos", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
}

func TestReportEndpoint_UpstreamErrorIsBadGateway(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"wrong password"}`))
	}))
	router := srv.createRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/sjeca?year=2026", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "wrong password", body["error"])
}

func TestReportEndpoint_OfflineWithoutCache(t *testing.T) {
	srv, remote := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	remote.Close()
	router := srv.createRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/sjeca?year=2026", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInvalidateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rows":[]}`))
	}))
	router := srv.createRouter()

	// Populate, then invalidate.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/sjeca?year=2026", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/reports/sjeca", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["deleted"])
}

func TestControl_GetCacheInfo(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	router := srv.createRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control",
		strings.NewReader(`{"type":"GET_CACHE_INFO"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "app-cache-v1", body["generation"])
	assert.Greater(t, body["ttl_ms"], float64(0))
}

func TestControl_ClearCache(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	router := srv.createRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control",
		strings.NewReader(`{"type":"CLEAR_CACHE"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
}

func TestControl_SkipWaiting(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	router := srv.createRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control",
		strings.NewReader(`{"type":"SKIP_WAITING"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
}

func TestControl_UnknownMessage(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	router := srv.createRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control",
		strings.NewReader(`{"type":"REBOOT"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	router := srv.createRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	router := srv.createRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCatchAll_RoutesToProxy(t *testing.T) {
	srv, remote := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("asset body"))
	}))
	router := srv.createRouter()

	// An absolute-URL request that matches no API route falls through to
	// the interception proxy's static strategy.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, remote.URL+"/css/app.css", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "asset body", rec.Body.String())
}
