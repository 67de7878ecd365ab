package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	r := NewRedisBackend(RedisOptions{Addr: srv.Addr(), Prefix: "test"})
	defer r.Close()

	if err := r.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := r.Get(ctx, "auth_session"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := r.Set(ctx, "auth_session", []byte(`{"token":"abc"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, err := srv.Get("test:auth_session")
	if err != nil || raw != `{"token":"abc"}` {
		t.Fatalf("unexpected stored value %q err=%v", raw, err)
	}
	if err := r.Delete(ctx, "auth_session"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if srv.Exists("test:auth_session") {
		t.Fatalf("expected key removed")
	}
}

func TestRedisBackendWatchSkipsOwnWrites(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	a := NewRedisBackend(RedisOptions{Addr: srv.Addr()})
	b := NewRedisBackend(RedisOptions{Addr: srv.Addr()})
	defer a.Close()
	defer b.Close()

	fromA := make(chan Change, 4)
	fromB := make(chan Change, 4)
	stopA, err := a.Watch("auth_session", func(c Change) { fromA <- c })
	if err != nil {
		t.Fatalf("watch a: %v", err)
	}
	defer stopA()
	stopB, err := b.Watch("auth_session", func(c Change) { fromB <- c })
	if err != nil {
		t.Fatalf("watch b: %v", err)
	}
	defer stopB()

	if err := a.Set(ctx, "auth_session", []byte(`"x"`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	select {
	case c := <-fromB:
		if string(c.Value) != `"x"` {
			t.Fatalf("unexpected value %q", c.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change on b")
	}

	if err := a.Delete(ctx, "auth_session"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case c := <-fromB:
		if !c.Deleted {
			t.Fatalf("expected deletion, got %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for delete on b")
	}

	select {
	case c := <-fromA:
		t.Fatalf("writer received its own change: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisBackedValuesShareSession(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	a := NewRedisBackend(RedisOptions{Addr: srv.Addr()})
	b := NewRedisBackend(RedisOptions{Addr: srv.Addr()})
	defer a.Close()
	defer b.Close()

	va := Open(ctx, a, "prefs", prefs{}, quietLogger())
	vb := Open(ctx, b, "prefs", prefs{}, quietLogger())
	defer va.Close()
	defer vb.Close()

	changed := make(chan prefs, 1)
	vb.OnChange(func(p prefs) { changed <- p })
	va.Set(ctx, prefs{Theme: "dark"})

	select {
	case p := <-changed:
		if p.Theme != "dark" {
			t.Fatalf("unexpected value %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for propagation")
	}
	if got := vb.Get(); got.Theme != "dark" {
		t.Fatalf("unexpected value on b: %+v", got)
	}
}
