package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const defaultPollInterval = 500 * time.Millisecond

// FileBackend stores one file per key under a base directory. Writes go
// through a temp file and a rename so readers never see a partial value.
type FileBackend struct {
	basePath string
	interval time.Duration

	mu       sync.Mutex
	stoppers []func()

	// io orders local writes against poller reads.
	io     sync.RWMutex
	writes map[string]localWrite
}

// localWrite is the last value this handle wrote for a key. Pollers use it
// to tell their own writes apart from other processes'.
type localWrite struct {
	data    []byte
	deleted bool
}

func (w localWrite) matches(data []byte, present bool) bool {
	if w.deleted {
		return !present
	}
	return present && bytes.Equal(w.data, data)
}

// NewFileBackend creates the base directory if missing. A non-positive
// interval selects the default poll interval for Watch.
func NewFileBackend(basePath string, interval time.Duration) (*FileBackend, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &FileBackend{basePath: basePath, interval: interval, writes: make(map[string]localWrite)}, nil
}

func (f *FileBackend) path(key string) string {
	return filepath.Join(f.basePath, safeFilename(key)+".json")
}

// Get reads the file for key.
func (f *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Set replaces the file for key atomically.
func (f *FileBackend) Set(_ context.Context, key string, value []byte) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.basePath, ".kv-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", key, err)
	}
	f.io.Lock()
	defer f.io.Unlock()
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	f.writes[key] = localWrite{data: append([]byte(nil), value...)}
	return nil
}

// Delete removes the file for key.
func (f *FileBackend) Delete(_ context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	f.io.Lock()
	defer f.io.Unlock()
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	f.writes[key] = localWrite{deleted: true}
	return nil
}

// Watch polls the file for key and reports content changes made by other
// processes. Values written through f are not reported.
func (f *FileBackend) Watch(key string, fn func(Change)) (func(), error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	last, present := f.snapshot(key)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			f.io.RLock()
			data, ok := f.snapshot(key)
			own, wrote := f.writes[key]
			f.io.RUnlock()
			if wrote && own.matches(data, ok) {
				present, last = ok, data
				continue
			}
			switch {
			case !ok && present:
				present, last = false, nil
				fn(Change{Key: key, Deleted: true})
			case ok && (!present || !bytes.Equal(data, last)):
				present, last = true, data
				fn(Change{Key: key, Value: append([]byte(nil), data...)})
			}
		}
	}()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}
	f.mu.Lock()
	f.stoppers = append(f.stoppers, stop)
	f.mu.Unlock()
	return stop, nil
}

// Close stops all pollers.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	stops := f.stoppers
	f.stoppers = nil
	f.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	return nil
}

func (f *FileBackend) snapshot(key string) ([]byte, bool) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func safeFilename(key string) string {
	name := url.PathEscape(strings.TrimSpace(key))
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	if name == "" || name == "." || name == ".." {
		return "value"
	}
	return name
}
