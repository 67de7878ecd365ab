package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"heritagecoffee/pkg/kvstore"
)

// StorageConfig selects where the session is persisted.
type StorageConfig struct {
	Driver        string
	Dir           string
	SQLitePath    string
	PollInterval  time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// OpenBackend builds the key-value backend named by cfg.Driver: memory,
// file (default), sqlite or redis.
func OpenBackend(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (kvstore.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "memory":
		return kvstore.NewMemoryBackend(), nil
	case "", "file":
		backend, err := kvstore.NewFileBackend(cfg.Dir, cfg.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("init file storage: %w", err)
		}
		return backend, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		backend, err := kvstore.OpenSQLBackend(cfg.SQLitePath, cfg.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("init sqlite storage: %w", err)
		}
		return backend, nil
	case "redis":
		backend := kvstore.NewRedisBackend(kvstore.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			Logger:   logger,
		})
		if err := backend.Ping(ctx); err != nil {
			backend.Close()
			return nil, fmt.Errorf("connect redis storage: %w", err)
		}
		return backend, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
