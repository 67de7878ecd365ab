package kvstore

import (
	"context"
	"sync"
)

// MemoryBackend keeps values in-process. Every write is fanned out to all
// watchers of the key, so two Value handles opened on one MemoryBackend
// behave like two browser tabs sharing local storage.
type MemoryBackend struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[string]map[int]func(Change)
	nextID   int
	closed   bool
}

// NewMemoryBackend initializes an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values:   make(map[string][]byte),
		watchers: make(map[string]map[int]func(Change)),
	}
}

// Get returns a copy of the stored value.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores value and notifies watchers.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	stored := append([]byte(nil), value...)
	m.mu.Lock()
	m.values[key] = stored
	fns := m.watchersLocked(key)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(Change{Key: key, Value: append([]byte(nil), stored...)})
	}
	return nil
}

// Delete removes key and notifies watchers when it existed.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	_, existed := m.values[key]
	delete(m.values, key)
	var fns []func(Change)
	if existed {
		fns = m.watchersLocked(key)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(Change{Key: key, Deleted: true})
	}
	return nil
}

// Watch registers fn for writes to key.
func (m *MemoryBackend) Watch(key string, fn func(Change)) (func(), error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	if m.watchers[key] == nil {
		m.watchers[key] = make(map[int]func(Change))
	}
	m.watchers[key][id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.watchers[key], id)
		})
	}, nil
}

// Close drops all watchers.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.watchers = make(map[string]map[int]func(Change))
	return nil
}

func (m *MemoryBackend) watchersLocked(key string) []func(Change) {
	if m.closed {
		return nil
	}
	out := make([]func(Change), 0, len(m.watchers[key]))
	for _, fn := range m.watchers[key] {
		out = append(out, fn)
	}
	return out
}
