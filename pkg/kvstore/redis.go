package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"heritagecoffee/internal/util"
)

const redisOpTimeout = 3 * time.Second

// RedisOptions configures a RedisBackend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces keys and change channels. Defaults to "storefront".
	Prefix string
	Logger *slog.Logger
}

// RedisBackend keeps values in Redis and announces every write on a
// per-key pub/sub channel, which lets several processes share one session.
type RedisBackend struct {
	client *redis.Client
	prefix string
	origin string
	logger *slog.Logger

	mu    sync.Mutex
	subs  []*redis.PubSub
	close sync.Once
}

type redisChange struct {
	Origin  string `json:"origin"`
	Value   []byte `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// NewRedisBackend builds a Redis-backed store.
func NewRedisBackend(opts RedisOptions) *RedisBackend {
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "storefront"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBackend{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: prefix,
		origin: util.NewID(),
		logger: logger,
	}
}

func (r *RedisBackend) dataKey(key string) string {
	return r.prefix + ":" + key
}

func (r *RedisBackend) channel(key string) string {
	return r.prefix + ":changed:" + key
}

// Ping checks connectivity.
func (r *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// Get loads the value for key.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	val, err := r.client.Get(ctx, r.dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value and publishes the change.
func (r *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(redisChange{Origin: r.origin, Value: value})
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.dataKey(key), value, 0)
		pipe.Publish(ctx, r.channel(key), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key and publishes the deletion.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(redisChange{Origin: r.origin, Deleted: true})
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.dataKey(key))
		pipe.Publish(ctx, r.channel(key), msg)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Watch subscribes to the change channel of key. Changes published by this
// backend instance are skipped.
func (r *RedisBackend) Watch(key string, fn func(Change)) (func(), error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	sub := r.client.Subscribe(ctx, r.channel(key))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", key, err)
	}
	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for msg := range sub.Channel() {
			var change redisChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				r.logger.Warn("kvstore: malformed change message", "key", key, "err", err)
				continue
			}
			if change.Origin == r.origin {
				continue
			}
			fn(Change{Key: key, Value: change.Value, Deleted: change.Deleted})
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.Close()
			<-finished
		})
	}, nil
}

// Close closes subscriptions and the client.
func (r *RedisBackend) Close() error {
	var err error
	r.close.Do(func() {
		r.mu.Lock()
		subs := r.subs
		r.subs = nil
		r.mu.Unlock()
		for _, sub := range subs {
			sub.Close()
		}
		err = r.client.Close()
	})
	return err
}
