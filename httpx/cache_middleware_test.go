package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adeilh/unimart/cache/memory"
	"github.com/adeilh/unimart/marketcache"
)

func newCachedServer(t *testing.T, calls *atomic.Int64) (*TestServer, *marketcache.Cache) {
	t.Helper()
	mc := marketcache.New(memory.NewStore(memory.Options{}))

	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/api/categories", func(c Context) error {
			calls.Add(1)
			return c.JSON(StatusOK, map[string]any{"categories": []string{"books", "bikes"}})
		}, ResponseCache(mc, time.Minute))
		a.GET("/api/broken", func(c Context) error {
			calls.Add(1)
			return HTTPError(StatusInternalError, "boom")
		}, ResponseCache(mc, time.Minute))
		a.POST("/api/categories", func(c Context) error {
			calls.Add(1)
			return c.JSON(StatusOK, map[string]string{"ok": "yes"})
		}, ResponseCache(mc, time.Minute))
	})
	ts := NewTestServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, mc
}

// waitForCached polls until the background write lands.
func waitForCached(t *testing.T, mc *marketcache.Cache, path string) []byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if body, ok := mc.GetCachedResponse(context.Background(), path); ok {
			return body
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("response for %s was never cached", path)
	return nil
}

func TestResponseCacheMissThenHit(t *testing.T) {
	var calls atomic.Int64
	ts, mc := newCachedServer(t, &calls)
	client := NewClient(WithBaseURL(ts.BaseURL()))
	ctx := context.Background()

	var first map[string][]string
	resp, err := client.Get(ctx, "/api/categories", &first, WithQuery(map[string]string{"b": "2", "a": "1"}))
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if resp.Header().Get(HeaderXCache) != CacheMiss {
		t.Fatalf("X-Cache = %q, want MISS", resp.Header().Get(HeaderXCache))
	}
	waitForCached(t, mc, "/api/categories?a=1&b=2")

	var second map[string][]string
	resp, err = client.Get(ctx, "/api/categories", &second, WithQuery(map[string]string{"a": "1", "b": "2"}))
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if resp.Header().Get(HeaderXCache) != CacheHit {
		t.Fatalf("X-Cache = %q, want HIT", resp.Header().Get(HeaderXCache))
	}
	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", calls.Load())
	}
	if len(second["categories"]) != 2 || second["categories"][0] != "books" {
		t.Fatalf("cached body = %v", second)
	}

	etag := resp.Header().Get(HeaderETag)
	if etag == "" {
		t.Fatalf("hit without ETag")
	}
	resp, err = client.Get(ctx, "/api/categories?a=1&b=2", nil, WithRequestHeaders(map[string]string{HeaderIfNoneMatch: etag}))
	if err != nil {
		t.Fatalf("conditional request failed: %v", err)
	}
	if resp.StatusCode() != StatusNotModified {
		t.Fatalf("status = %d, want 304", resp.StatusCode())
	}
}

func TestResponseCacheSkipsErrorsAndWrites(t *testing.T) {
	var calls atomic.Int64
	ts, mc := newCachedServer(t, &calls)
	client := NewClient(WithBaseURL(ts.BaseURL()))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := client.Get(ctx, "/api/broken", nil); !IsStatus(err, StatusInternalError) {
			t.Fatalf("expected 500, got %v", err)
		}
		if _, err := client.Post(ctx, "/api/categories", map[string]string{}, nil); err != nil {
			t.Fatalf("POST failed: %v", err)
		}
	}
	if calls.Load() != 4 {
		t.Fatalf("handler ran %d times, want 4", calls.Load())
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := mc.GetCachedResponse(ctx, "/api/broken"); ok {
		t.Fatalf("error response was cached")
	}
}

func TestResponseCacheFailsOpen(t *testing.T) {
	store := memory.NewStore(memory.Options{})
	_ = store.Close()
	mc := marketcache.New(store)

	handler := ResponseCache(mc, time.Minute)(func(c Context) error {
		return c.JSON(StatusOK, map[string]string{"fresh": "yes"})
	})

	app := New()
	app.GET("/api/categories", handler)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/categories", nil))

	if rec.Code != StatusOK || rec.Header().Get(HeaderXCache) != CacheMiss {
		t.Fatalf("status=%d X-Cache=%q", rec.Code, rec.Header().Get(HeaderXCache))
	}
}

func TestETagMatching(t *testing.T) {
	tag := ETag([]byte(`{"a":1}`))
	if tag != ETag([]byte(`{"a":1}`)) || tag == ETag([]byte(`{"a":2}`)) {
		t.Fatalf("ETag is not a stable content hash")
	}
	cases := map[string]bool{
		"":                false,
		tag:               true,
		"W/" + tag:        true,
		`"other", ` + tag: true,
		"*":               true,
		`"other"`:         false,
	}
	for header, want := range cases {
		if got := etagMatches(header, tag); got != want {
			t.Errorf("etagMatches(%q) = %v, want %v", header, got, want)
		}
	}
}
