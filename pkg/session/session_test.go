package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"heritagecoffee/pkg/domain"
	"heritagecoffee/pkg/kvstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIsAuthenticatedFollowsToken(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, kvstore.NewMemoryBackend(), testLogger())
	defer s.Close()

	if s.IsAuthenticated() {
		t.Fatalf("new store should be signed out")
	}
	s.Login(ctx, "tok", domain.User{ID: 7, FirstName: "Ana"})
	if !s.IsAuthenticated() || s.Token() != "tok" || s.User().ID != 7 {
		t.Fatalf("unexpected session after login: %+v", s.Snapshot())
	}
	s.Login(ctx, "", domain.User{ID: 7})
	if s.IsAuthenticated() {
		t.Fatalf("empty token must not count as authenticated")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemoryBackend()
	s := Open(ctx, backend, testLogger())
	defer s.Close()

	s.Login(ctx, "tok", domain.User{ID: 1})
	s.Logout(ctx)
	s.Logout(ctx)
	if s.IsAuthenticated() || s.User() != nil {
		t.Fatalf("expected empty session, got %+v", s.Snapshot())
	}
	if _, err := backend.Get(ctx, Key); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("expected persisted record removed, got %v", err)
	}
}

func TestUpdateUserKeepsToken(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, kvstore.NewMemoryBackend(), testLogger())
	defer s.Close()

	s.Login(ctx, "tok", domain.User{ID: 3, FirstName: "Old"})
	var events []Record
	s.Subscribe(func(_, next Record) { events = append(events, next) })
	s.UpdateUser(ctx, domain.User{ID: 3, FirstName: "New"})

	if s.Token() != "tok" || s.User().FirstName != "New" {
		t.Fatalf("unexpected session: %+v", s.Snapshot())
	}
	if len(events) != 1 {
		t.Fatalf("expected one notification, got %d", len(events))
	}
	if !events[0].SameIdentity(Record{Token: "tok", User: &domain.User{ID: 3}}) {
		t.Fatalf("profile edit must keep identity")
	}
}

func TestSubscribeReceivesPrevAndNext(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, kvstore.NewMemoryBackend(), testLogger())
	defer s.Close()

	type event struct{ prev, next Record }
	var events []event
	unsubscribe := s.Subscribe(func(prev, next Record) { events = append(events, event{prev, next}) })

	s.Login(ctx, "tok", domain.User{ID: 1})
	s.Logout(ctx)
	unsubscribe()
	s.Login(ctx, "ignored", domain.User{ID: 2})

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].prev.IsAuthenticated() || !events[0].next.IsAuthenticated() {
		t.Fatalf("unexpected login event: %+v", events[0])
	}
	if !events[1].prev.IsAuthenticated() || events[1].next.IsAuthenticated() {
		t.Fatalf("unexpected logout event: %+v", events[1])
	}
}

func TestSessionsSharingBackendStayInSync(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemoryBackend()
	a := Open(ctx, backend, testLogger())
	b := Open(ctx, backend, testLogger())
	defer a.Close()
	defer b.Close()

	var seen []Record
	b.Subscribe(func(_, next Record) { seen = append(seen, next) })

	a.Login(ctx, "tok", domain.User{ID: 9})
	if b.Token() != "tok" || b.User().ID != 9 {
		t.Fatalf("second session did not pick up login: %+v", b.Snapshot())
	}
	a.Logout(ctx)
	if b.IsAuthenticated() {
		t.Fatalf("second session did not pick up logout")
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 external notifications, got %d", len(seen))
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, kvstore.NewMemoryBackend(), testLogger())
	defer s.Close()
	s.Login(ctx, "tok", domain.User{ID: 1, FirstName: "Ana"})

	snap := s.Snapshot()
	snap.User.FirstName = "Mutated"
	if s.User().FirstName != "Ana" {
		t.Fatalf("snapshot mutation leaked into the store")
	}
}

func TestOpenMigratesLegacyKeys(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemoryBackend()
	if err := backend.Set(ctx, LegacyTokenKey, []byte(`"legacy-token"`)); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	if err := backend.Set(ctx, LegacyUserKey, []byte(`{"id":4,"firstName":"Lou","lastName":"B","emailAddress":"lou@example.com"}`)); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	s := Open(ctx, backend, testLogger())
	defer s.Close()

	if s.Token() != "legacy-token" || s.User() == nil || s.User().ID != 4 {
		t.Fatalf("legacy session not migrated: %+v", s.Snapshot())
	}
	for _, key := range []string{LegacyTokenKey, LegacyUserKey} {
		if _, err := backend.Get(ctx, key); !errors.Is(err, kvstore.ErrNotFound) {
			t.Fatalf("legacy key %s not removed: %v", key, err)
		}
	}
	if _, err := backend.Get(ctx, Key); err != nil {
		t.Fatalf("combined record not written: %v", err)
	}
}

func TestOpenKeepsCombinedRecordOverLegacy(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemoryBackend()
	_ = backend.Set(ctx, Key, []byte(`{"token":"current"}`))
	_ = backend.Set(ctx, LegacyTokenKey, []byte(`"stale"`))

	s := Open(ctx, backend, testLogger())
	defer s.Close()
	if s.Token() != "current" {
		t.Fatalf("expected combined record to win, got %q", s.Token())
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := Open(ctx, kvstore.NewMemoryBackend(), testLogger())
	defer s.Close()

	if s.Expired(now) {
		t.Fatalf("signed-out session cannot be expired")
	}
	s.Login(ctx, "opaque-token", domain.User{ID: 1})
	if s.Expired(now) {
		t.Fatalf("opaque tokens are never considered expired")
	}
	s.Login(ctx, signedToken(t, now.Add(-time.Minute)), domain.User{ID: 1})
	if !s.Expired(now) {
		t.Fatalf("expected expired token")
	}
	s.Login(ctx, signedToken(t, now.Add(time.Hour)), domain.User{ID: 1})
	if s.Expired(now) {
		t.Fatalf("token should still be valid")
	}
}

func TestPersistedTokenReadsStorage(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemoryBackend()
	s := Open(ctx, backend, testLogger())
	defer s.Close()

	if _, ok := s.PersistedToken(ctx); ok {
		t.Fatalf("expected no persisted token")
	}
	s.Login(ctx, "tok", domain.User{ID: 1})
	if token, ok := s.PersistedToken(ctx); !ok || token != "tok" {
		t.Fatalf("unexpected persisted token %q ok=%v", token, ok)
	}
	if err := backend.Set(ctx, Key, []byte(`{"token":"other"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if token, _ := s.PersistedToken(ctx); token != "other" {
		t.Fatalf("expected fresh read, got %q", token)
	}
}
