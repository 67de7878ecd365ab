package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
)

// Value is a typed, JSON-encoded handle on one backend key. Reads are served
// from memory and never fail; writes update memory first and then persist,
// so a failing backend only costs durability.
type Value[T any] struct {
	backend Backend
	key     string
	def     T
	logger  *slog.Logger

	mu        sync.Mutex
	current   T
	raw       []byte
	listeners map[int]func(T)
	nextID    int
	stop      func()
}

// Open reads the initial value of key (falling back to def) and starts
// watching the key for writes made elsewhere.
func Open[T any](ctx context.Context, backend Backend, key string, def T, logger *slog.Logger) *Value[T] {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Value[T]{
		backend:   backend,
		key:       key,
		def:       def,
		current:   def,
		logger:    logger.With("key", key),
		listeners: make(map[int]func(T)),
	}
	if data, err := backend.Get(ctx, key); err == nil {
		var decoded T
		if err := json.Unmarshal(data, &decoded); err != nil {
			v.logger.Warn("kvstore: stored value is malformed, using default", "err", err)
		} else {
			v.current = decoded
			v.raw = data
		}
	} else if !errors.Is(err, ErrNotFound) {
		v.logger.Warn("kvstore: read failed, using default", "err", err)
	}
	stop, err := backend.Watch(key, v.apply)
	if err != nil {
		v.logger.Warn("kvstore: watch unavailable, external changes will not be seen", "err", err)
	} else {
		v.stop = stop
	}
	return v
}

// Key returns the backend key.
func (v *Value[T]) Key() string {
	return v.key
}

// Get returns the in-memory value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the value and persists it. Persistence errors are logged.
func (v *Value[T]) Set(ctx context.Context, next T) {
	data, err := json.Marshal(next)
	v.mu.Lock()
	v.current = next
	if err == nil {
		v.raw = data
	}
	v.mu.Unlock()
	if err != nil {
		v.logger.Error("kvstore: encode failed, value kept in memory only", "err", err)
		return
	}
	if err := v.backend.Set(ctx, v.key, data); err != nil {
		v.logger.Error("kvstore: persist failed, value kept in memory only", "err", err)
	}
}

// Reset restores the default and removes the persisted entry.
func (v *Value[T]) Reset(ctx context.Context) {
	v.mu.Lock()
	v.current = v.def
	v.raw = nil
	v.mu.Unlock()
	if err := v.backend.Delete(ctx, v.key); err != nil {
		v.logger.Error("kvstore: delete failed", "err", err)
	}
}

// Load reads the key from the backend, bypassing memory. ok is false when
// the key is absent, unreadable or malformed.
func (v *Value[T]) Load(ctx context.Context) (T, bool) {
	data, err := v.backend.Get(ctx, v.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			v.logger.Warn("kvstore: fresh read failed", "err", err)
		}
		return v.def, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		v.logger.Warn("kvstore: stored value is malformed", "err", err)
		return v.def, false
	}
	return out, true
}

// OnChange registers fn for values applied from external writes.
func (v *Value[T]) OnChange(fn func(T)) (unsubscribe func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	id := v.nextID
	v.listeners[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.listeners, id)
	}
}

// Close stops watching the key. The backend stays open.
func (v *Value[T]) Close() {
	v.mu.Lock()
	stop := v.stop
	v.stop = nil
	v.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (v *Value[T]) apply(change Change) {
	if change.Key != v.key {
		return
	}
	v.mu.Lock()
	if change.Deleted {
		if v.raw == nil {
			v.mu.Unlock()
			return
		}
		v.current = v.def
		v.raw = nil
	} else {
		if v.raw != nil && bytes.Equal(change.Value, v.raw) {
			v.mu.Unlock()
			return
		}
		var next T
		if err := json.Unmarshal(change.Value, &next); err != nil {
			v.mu.Unlock()
			v.logger.Warn("kvstore: ignoring malformed external value", "err", err)
			return
		}
		v.current = next
		v.raw = append([]byte(nil), change.Value...)
	}
	current := v.current
	fns := make([]func(T), 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.mu.Unlock()
	for _, fn := range fns {
		fn(current)
	}
}
