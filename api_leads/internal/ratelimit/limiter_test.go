package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"dopahiyaa/pkg/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "test", 2, time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 15, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "dealer-1")
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: expected allowed, got %+v / %v", i, d, err)
		}
	}
	d, err := l.Allow(ctx, "dealer-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("expected third request to be limited, got %+v", d)
	}
	if d.RetryAfter != 45*time.Second {
		t.Fatalf("expected 45s until window reset, got %s", d.RetryAfter)
	}

	if d, _ := l.Allow(ctx, "dealer-2"); !d.Allowed {
		t.Fatalf("expected other key to be independent")
	}

	now = now.Add(time.Minute)
	if d, _ := l.Allow(ctx, "dealer-1"); !d.Allowed {
		t.Fatalf("expected next window to allow")
	}
}

func TestRedisLimiterSetsExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "rl", 5, time.Minute)
	if _, err := l.Allow(context.Background(), "k"); err != nil {
		t.Fatalf("allow: %v", err)
	}
	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one counter key, got %v", keys)
	}
	if ttl := mr.TTL(keys[0]); ttl != 2*time.Minute {
		t.Fatalf("expected 2m ttl, got %s", ttl)
	}
}

func TestLocalLimiterResetsAfterWindow(t *testing.T) {
	l := NewLocalLimiter(1, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }

	if d, _ := l.Allow(context.Background(), "a"); !d.Allowed {
		t.Fatalf("expected first request allowed")
	}
	if d, _ := l.Allow(context.Background(), "a"); d.Allowed {
		t.Fatalf("expected second request limited")
	}
	now = now.Add(time.Minute)
	if d, _ := l.Allow(context.Background(), "a"); !d.Allowed {
		t.Fatalf("expected new window to allow")
	}
}

func TestMiddlewareAnswers429(t *testing.T) {
	r := gin.New()
	r.Use(Middleware(NewLocalLimiter(1, time.Minute), "unlock", func(c *gin.Context) string {
		return c.GetHeader("X-Actor")
	}, logging.NewLogger()))
	r.POST("/unlock", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/unlock", nil)
		req.Header.Set("X-Actor", "d-1")
		r.ServeHTTP(w, req)
		return w
	}

	if w := send(); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w := send()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestMiddlewareFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	r := gin.New()
	r.Use(Middleware(NewRedisLimiter(client, "", 1, time.Minute), "purchase", func(*gin.Context) string { return "x" }, logging.NewLogger()))
	r.POST("/p", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/p", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected request through when redis is down, got %d", w.Code)
	}
}
