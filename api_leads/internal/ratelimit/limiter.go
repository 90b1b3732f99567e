package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RedisLimiter is a fixed-window counter shared by every instance. The window
// index is part of the key so counters never need resetting.
type RedisLimiter struct {
	client goredis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client goredis.UniversalClient, prefix string, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		key = "unknown"
	}
	now := l.now()
	idx := now.UnixNano() / int64(l.window)
	redisKey := l.prefix + ":" + key + ":" + strconv.FormatInt(idx, 10)

	var incr *goredis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, 2*l.window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit counter: %w", err)
	}

	count := int(incr.Val())
	windowEnd := time.Unix(0, (idx+1)*int64(l.window))
	return decide(count, l.limit, windowEnd.Sub(now)), nil
}

type bucket struct {
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

// LocalLimiter is the single-process fallback used when Redis is not configured.
type LocalLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	ttl     time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LocalLimiter{
		limit:   limit,
		window:  window,
		ttl:     10 * window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, k)
		}
	}

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.window {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}
	b.lastSeen = now
	b.count++
	return decide(b.count, l.limit, b.windowStart.Add(l.window).Sub(now)), nil
}

func decide(count, limit int, untilReset time.Duration) Decision {
	d := Decision{Allowed: count <= limit, Limit: limit, Remaining: limit - count}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = untilReset
	}
	return d
}
