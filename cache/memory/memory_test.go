package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/adeilh/unimart/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(clock *fakeClock) *Store {
	return NewStore(Options{Capacity: 1000, NumShards: 4, Now: clock.Now})
}

func TestStoreSetGetDelete(t *testing.T) {
	store := newTestStore(newFakeClock())
	ctx := context.Background()

	if err := store.Set(ctx, "product:1", []byte("desk"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	payload, err := store.Get(ctx, "product:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(payload) != "desk" {
		t.Fatalf("Get() = %q, want %q", payload, "desk")
	}

	n, err := store.Delete(ctx, "product:1", "product:missing")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Delete() = %d, want 1", n)
	}
	if _, err := store.Get(ctx, "product:1"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if n, err := store.Delete(ctx); err != nil || n != 0 {
		t.Fatalf("Delete() with no keys = %d, %v", n, err)
	}
}

func TestStoreTTL(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	ctx := context.Background()

	if err := store.Set(ctx, "user:9", []byte("v"), 2*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	clock.Advance(1999 * time.Millisecond)
	if _, err := store.Get(ctx, "user:9"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}
	clock.Advance(time.Millisecond)
	if _, err := store.Get(ctx, "user:9"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound at elapsed == ttl, got %v", err)
	}

	if err := store.Set(ctx, "forever", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	clock.Advance(1000 * time.Hour)
	if _, err := store.Get(ctx, "forever"); err != nil {
		t.Fatalf("entry without ttl expired: %v", err)
	}
}

func TestStoreKeysSkipsExpiredAndForeign(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	ctx := context.Background()

	_ = store.Set(ctx, "products:pageA", []byte("a"), time.Minute)
	_ = store.Set(ctx, "products:pageB", []byte("b"), time.Minute)
	_ = store.Set(ctx, "products:stale", []byte("c"), time.Second)
	_ = store.Set(ctx, "user:7", []byte("u"), time.Minute)
	clock.Advance(2 * time.Second)

	keys, err := store.Keys(ctx, "products:*")
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	sort.Strings(keys)
	if fmt.Sprint(keys) != "[products:pageA products:pageB]" {
		t.Fatalf("Keys() = %v", keys)
	}

	none, err := store.Keys(ctx, "search:*")
	if err != nil || len(none) != 0 {
		t.Fatalf("Keys() for empty namespace = %v, %v", none, err)
	}
}

func TestStoreIdempotentSet(t *testing.T) {
	store := newTestStore(newFakeClock())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.Set(ctx, "category:books", []byte(`{"n":1}`), time.Minute); err != nil {
			t.Fatalf("Set() #%d error = %v", i, err)
		}
	}
	payload, err := store.Get(ctx, "category:books")
	if err != nil || string(payload) != `{"n":1}` {
		t.Fatalf("Get() = %q, %v", payload, err)
	}
	keys, _ := store.Keys(ctx, "category:*")
	if len(keys) != 1 {
		t.Fatalf("expected a single key after repeated Set, got %v", keys)
	}
}

func TestStoreFlushPingClose(t *testing.T) {
	store := newTestStore(newFakeClock())
	ctx := context.Background()

	_ = store.Set(ctx, "a", []byte("1"), 0)
	_ = store.Set(ctx, "b", []byte("2"), 0)
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if keys, _ := store.Keys(ctx, "*"); len(keys) != 0 {
		t.Fatalf("Keys() after Flush = %v", keys)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Ping() after Close = %v, want ErrClosed", err)
	}
	if err := store.Set(ctx, "a", []byte("1"), 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set() after Close = %v, want ErrClosed", err)
	}
}

func TestStoreContextCancellation(t *testing.T) {
	store := newTestStore(newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Set(ctx, "any", []byte("value"), 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStoreConcurrentSetGet(t *testing.T) {
	store := NewStore(Options{Capacity: 10000, NumShards: 16})

	const workers = 16
	const opsPerWorker = 100

	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			ctx := context.Background()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("memory:concurrent:%d:%d", worker, i)
				if err := store.Set(ctx, key, []byte(key), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d set failed: %w", worker, err)
					return
				}
				payload, err := store.Get(ctx, key)
				if err != nil {
					errCh <- fmt.Errorf("worker %d get failed: %w", worker, err)
					return
				}
				if string(payload) != key {
					errCh <- fmt.Errorf("worker %d mismatch: got %q want %q", worker, payload, key)
					return
				}
			}
		}(w)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent op failed: %v", err)
	}
}
