package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache[V any](opts Options, hooks Hooks) (*Cache[V], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[V](opts, hooks)
	c.now = clock.Now
	return c, clock
}

func TestCacheSetPeekDelete(t *testing.T) {
	c, _ := newTestCache[string](Options{TTL: time.Minute}, Hooks{})

	c.Set("alpha", "value", time.Minute)
	if val, ok := c.Peek("alpha"); !ok || val != "value" {
		t.Fatalf("expected peeked value, got %q %v", val, ok)
	}

	c.Delete("alpha")
	if _, ok := c.Peek("alpha"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestCacheGetHitThenStaleRefresh(t *testing.T) {
	var stale int32
	c, clock := newTestCache[int](Options{TTL: 10 * time.Second, StaleWhileRevalidate: time.Minute}, Hooks{
		OnStale: func(string) { atomic.AddInt32(&stale, 1) },
	})

	var calls int32
	refreshed := make(chan struct{}, 1)
	loader := func(context.Context, string) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 2 {
			refreshed <- struct{}{}
		}
		return int(n), nil
	}

	if v, err := c.Get(context.Background(), "k", loader); err != nil || v != 1 {
		t.Fatalf("expected first load 1, got %d %v", v, err)
	}
	if v, _ := c.Get(context.Background(), "k", loader); v != 1 {
		t.Fatalf("expected cache hit, got %d", v)
	}

	clock.Advance(11 * time.Second)
	if v, _ := c.Get(context.Background(), "k", loader); v != 1 {
		t.Fatalf("expected stale value while refreshing, got %d", v)
	}

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("expected background refresh")
	}
	if atomic.LoadInt32(&stale) != 1 {
		t.Fatalf("expected one stale hook call")
	}
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	var onErr int32
	c, _ := newTestCache[int](Options{TTL: time.Minute}, Hooks{
		OnError: func(string, error) { atomic.AddInt32(&onErr, 1) },
	})
	boom := errors.New("db down")

	if _, err := c.Get(context.Background(), "k", func(context.Context, string) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("errors must not be cached")
	}
	if v, err := c.Get(context.Background(), "k", func(context.Context, string) (int, error) { return 7, nil }); err != nil || v != 7 {
		t.Fatalf("expected reload after error, got %d %v", v, err)
	}
	if atomic.LoadInt32(&onErr) != 1 {
		t.Fatalf("expected error hook once")
	}
}

func TestCacheNegativeEntries(t *testing.T) {
	c, clock := newTestCache[int](Options{TTL: time.Minute, NegativeTTL: 5 * time.Second}, Hooks{})
	var calls int32
	loader := func(context.Context, string) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, ErrNotFound
	}

	for i := 0; i < 3; i++ {
		if _, err := c.Get(context.Background(), "missing", loader); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected negative entry to be cached, loader ran %d times", calls)
	}

	clock.Advance(6 * time.Second)
	_, _ = c.Get(context.Background(), "missing", loader)
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected reload after negative TTL")
	}
}

func TestCacheCollapsesConcurrentLoads(t *testing.T) {
	c, _ := newTestCache[int](Options{TTL: time.Minute}, Hooks{})
	var calls int32
	release := make(chan struct{})
	loader := func(context.Context, string) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := c.Get(context.Background(), "k", loader); err != nil || v != 42 {
				t.Errorf("unexpected %d %v", v, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one collapsed load, got %d", calls)
	}
}

func TestCacheEvictionAndPurge(t *testing.T) {
	c, _ := newTestCache[int](Options{TTL: time.Minute, MaxEntries: 2}, Hooks{})
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	if _, ok := c.Peek("a"); ok {
		t.Fatalf("expected oldest key to be evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("expected purge to empty the cache")
	}
}
