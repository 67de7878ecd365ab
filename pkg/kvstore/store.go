// Package kvstore provides the persisted key-value layer behind the client
// session: a small Backend interface with memory, file, Redis and SQLite
// implementations, and a typed Value handle that never fails on read.
package kvstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Backend.Get when the key is absent.
var ErrNotFound = errors.New("kvstore: key not found")

// Change describes a write observed on a watched key.
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Backend persists opaque values by key and reports writes made by other
// handles on the same underlying storage.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Watch calls fn for changes to key made through other backend
	// instances (and, for the memory backend, other handles). The returned
	// stop func is idempotent.
	Watch(key string, fn func(Change)) (stop func(), err error)
	Close() error
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("kvstore: key is required")
	}
	return key, nil
}
