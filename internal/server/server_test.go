package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortr-io/shortr/internal/cache"
	"github.com/shortr-io/shortr/internal/config"
	"github.com/shortr-io/shortr/internal/core"
	"github.com/shortr-io/shortr/internal/hitstore"
	"github.com/shortr-io/shortr/internal/metrics"
	"github.com/shortr-io/shortr/internal/queue"
	"github.com/shortr-io/shortr/internal/service"
	"github.com/shortr-io/shortr/internal/shortcode"
	"github.com/shortr-io/shortr/internal/urlstore"
)

type testEnv struct {
	handler http.Handler
	store   *urlstore.Store
	queue   *queue.Memory
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()

	store, err := urlstore.New(config.StoreConfig{
		URL:            "sqlite://" + filepath.Join(dir, "urls.db"),
		ConnectTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	t.Cleanup(func() { store.Close() })

	hits, err := hitstore.NewRowstore(filepath.Join(dir, "hits.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { hits.Close() })

	strategy, err := shortcode.New(config.ShortCodeConfig{
		Strategy:   config.StrategyBase62,
		Length:     5,
		Salt:       1256,
		MaxRetries: 5,
	}, store)
	require.NoError(t, err)

	q := queue.NewMemory()
	m := metrics.New()

	svc, err := service.New(service.Options{
		Store:      store,
		Cache:      cache.NewMemory(),
		Queue:      q,
		Strategy:   strategy,
		HitStorage: hits,
		Metrics:    m,
		CacheTTL:   time.Hour,
	})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Environment = "test"
	cfg.BaseURL = "http://sho.rt"

	srv, err := New(cfg, svc, m, nil)
	require.NoError(t, err)

	return &testEnv{
		handler: srv.Handler(),
		store:   store,
		queue:   q,
		metrics: m,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) create(t *testing.T, longURL string) urlResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/urls/", `{"long_url": "`+longURL+`"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp urlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestRootBanner(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "shortr", body["service"])
	assert.Equal(t, core.Version, body["version"])
}

func TestHealth(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["environment"])
}

func TestCreateURL(t *testing.T) {
	env := newTestServer(t)

	resp := env.create(t, "https://example.com/docs")

	assert.Equal(t, int64(1), resp.ID)
	assert.Equal(t, "kh", resp.ShortCode)
	assert.Equal(t, "https://example.com/docs", resp.LongURL)
	assert.Equal(t, "http://sho.rt/kh", resp.ShortURL)
	assert.True(t, resp.IsActive)
	assert.Zero(t, resp.TotalHits)
}

func TestCreateValidation(t *testing.T) {
	env := newTestServer(t)

	cases := map[string]string{
		"not json":       `{{{`,
		"missing field":  `{}`,
		"empty url":      `{"long_url": ""}`,
		"no scheme":      `{"long_url": "example.com/x"}`,
		"wrong scheme":   `{"long_url": "ftp://example.com/x"}`,
		"scheme only":    `{"long_url": "https://"}`,
		"relative path":  `{"long_url": "/just/a/path"}`,
		"whitespace url": `{"long_url": "   "}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/urls/", body, nil)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestGetURL(t *testing.T) {
	env := newTestServer(t)
	created := env.create(t, "https://example.com/a")

	rec := env.do(t, http.MethodGet, "/api/v1/urls/"+created.ShortCode, "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp urlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.ShortCode, resp.ShortCode)
	assert.Equal(t, "https://example.com/a", resp.LongURL)
	assert.Equal(t, "http://sho.rt/"+created.ShortCode, resp.ShortURL)
}

func TestGetURLNotFound(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/urls/nope1", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "short url not found", decodeError(t, rec))
}

func TestRedirectPublishesHit(t *testing.T) {
	env := newTestServer(t)
	created := env.create(t, "https://example.com/landing")

	rec := env.do(t, http.MethodGet, "/"+created.ShortCode, "", map[string]string{
		"User-Agent": "curl/8.0",
		"Referer":    "https://news.ycombinator.com/",
	})

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/landing", rec.Header().Get("Location"))

	events, err := env.queue.Consume(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, created.ShortCode, events[0].ShortCode)
	assert.Equal(t, "curl/8.0", events[0].UserAgent)
	assert.Equal(t, "https://news.ycombinator.com/", events[0].Referer)
	assert.Equal(t, "192.0.2.1", events[0].IPAddress, "port is stripped from the remote address")
}

func TestRedirectUnknownCode(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/zzzzz", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "short url not found", decodeError(t, rec))

	length, err := env.queue.Length(context.Background())
	require.NoError(t, err)
	assert.Zero(t, length, "missed lookups do not enqueue hits")
}

func TestDeleteURL(t *testing.T) {
	env := newTestServer(t)
	created := env.create(t, "https://example.com/gone")

	rec := env.do(t, http.MethodDelete, "/api/v1/urls/"+created.ShortCode, "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/"+created.ShortCode, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/urls/"+created.ShortCode, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "a second delete reports not found")
}

func TestStats(t *testing.T) {
	env := newTestServer(t)
	created := env.create(t, "https://example.com/stats")

	require.NoError(t, env.store.IncrementHits(context.Background(), map[string]int64{
		created.ShortCode: 2,
	}))

	rec := env.do(t, http.MethodGet, "/api/v1/urls/"+created.ShortCode+"/stats", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats core.URLStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, created.ShortCode, stats.ShortCode)
	assert.Equal(t, int64(2), stats.TotalHits)
	require.NotNil(t, stats.Analytics)
	assert.Len(t, stats.Analytics.Daily, 30)
}

func TestStatsUnknownCode(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/urls/nope1/stats", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.create(t, "https://example.com/metrics-test")

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shortr_urls_created_total 1")
}

func TestNewRequiresService(t *testing.T) {
	_, err := New(config.DefaultConfig(), nil, nil, nil)
	require.Error(t, err)

	_, err = New(nil, nil, nil, nil)
	require.Error(t, err)
}
