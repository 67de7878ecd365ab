// Package ratelimit provides fixed-window request limiters keyed by caller.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request for key fits the quota.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}

func validate(limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return errors.New("rate limiter requires positive limit and window")
	}
	return nil
}

// RedisFixedWindow shares counters through Redis so several processes
// enforce one quota. It fails closed on Redis errors.
type RedisFixedWindow struct {
	limit  int
	window time.Duration
	client *redis.Client
	prefix string
}

// NewRedisFixedWindow creates a Redis-backed limiter.
func NewRedisFixedWindow(addr, password, prefix string, limit int, window time.Duration) (*RedisFixedWindow, error) {
	if err := validate(limit, window); err != nil {
		return nil, err
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "storefront:ratelimit"
	}
	return &RedisFixedWindow{
		limit:  limit,
		window: window,
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: prefix,
	}, nil
}

// Allow increments the counter of the current window.
func (l *RedisFixedWindow) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return false
	}
	windowMs := l.window.Milliseconds()
	if windowMs <= 0 {
		return true
	}
	slot := time.Now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, normalizeKey(key), slot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false
	}
	return n <= int64(l.limit)
}

// Close releases the Redis client.
func (l *RedisFixedWindow) Close() error {
	return l.client.Close()
}

// MemoryFixedWindow keeps counters in-process.
type MemoryFixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	slot    int64
	counter map[string]int
}

// NewMemoryFixedWindow creates an in-process limiter.
func NewMemoryFixedWindow(limit int, window time.Duration) (*MemoryFixedWindow, error) {
	if err := validate(limit, window); err != nil {
		return nil, err
	}
	return &MemoryFixedWindow{
		limit:   limit,
		window:  window,
		now:     time.Now,
		counter: make(map[string]int),
	}, nil
}

// Allow increments the counter of the current window. Counters of older
// windows are dropped.
func (l *MemoryFixedWindow) Allow(_ context.Context, key string) bool {
	if l == nil {
		return false
	}
	slot := l.now().UTC().UnixMilli() / l.window.Milliseconds()
	l.mu.Lock()
	defer l.mu.Unlock()
	if slot != l.slot {
		l.slot = slot
		l.counter = make(map[string]int)
	}
	key = normalizeKey(key)
	l.counter[key]++
	return l.counter[key] <= l.limit
}
