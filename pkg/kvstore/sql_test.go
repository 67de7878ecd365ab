package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openSQL(t *testing.T, dsn string) *SQLBackend {
	t.Helper()
	s, err := OpenSQLBackend(dsn, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openSQL(t, filepath.Join(t.TempDir(), "kv.db"))

	if _, err := s.Get(ctx, "auth_session"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Set(ctx, "auth_session", []byte("one")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "auth_session", []byte("two")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := s.Get(ctx, "auth_session")
	if err != nil || string(got) != "two" {
		t.Fatalf("unexpected value %q err=%v", got, err)
	}
	if err := s.Delete(ctx, "auth_session"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "auth_session"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestSQLBackendWatchSeesOtherConnection(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "kv.db")
	reader := openSQL(t, dsn)
	writer := openSQL(t, dsn)

	changes := make(chan Change, 4)
	stop, err := reader.Watch("auth_session", func(c Change) { changes <- c })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	if err := writer.Set(ctx, "auth_session", []byte(`{"token":"t"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	select {
	case c := <-changes:
		if string(c.Value) != `{"token":"t"}` {
			t.Fatalf("unexpected change %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change")
	}

	if err := writer.Delete(ctx, "auth_session"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case c := <-changes:
		if !c.Deleted {
			t.Fatalf("expected deletion, got %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for delete")
	}
}

func TestOpenSQLBackendRequiresDSN(t *testing.T) {
	if _, err := OpenSQLBackend("  ", 0); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
