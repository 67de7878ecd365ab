package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"heritagecoffee/pkg/domain"
	"heritagecoffee/pkg/kvstore"
	"heritagecoffee/services/storefront/internal/catalog"
	"heritagecoffee/services/storefront/internal/devbackend"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBackendServer(t *testing.T) *httptest.Server {
	t.Helper()
	backend, err := devbackend.New(devbackend.Config{
		Products:   catalog.Dataset(),
		Users:      []devbackend.SeedUser{{FirstName: "Ana", LastName: "Lopez", EmailAddress: "ana@example.com", Password: "secret1"}},
		BcryptCost: bcrypt.MinCost,
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	srv := httptest.NewServer(backend.Router())
	t.Cleanup(srv.Close)
	return srv
}

func newApp(t *testing.T, baseURL string, store kvstore.Backend) *App {
	t.Helper()
	if store == nil {
		store = kvstore.NewMemoryBackend()
	}
	a, err := New(context.Background(), Config{
		APIBaseURL:     baseURL,
		RequestTimeout: 5 * time.Second,
		Backend:        store,
		Logger:         testLogger(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAddToCartEndToEnd(t *testing.T) {
	srv := newBackendServer(t)
	a := newApp(t, srv.URL+"/api", nil)
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := a.SignIn(ctx, "ana@example.com", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	a.Cart.Wait()
	if cart := a.Cart.Cart(); cart == nil || len(cart.Items) != 0 {
		t.Fatalf("expected an empty cart after sign-in, got %+v", cart)
	}

	if err := a.AddToCart(ctx, 3); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !a.Cart.Total().Equal(decimal.RequireFromString("13.80")) {
		t.Fatalf("total = %s, want 13.80", a.Cart.Total())
	}
	if err := a.AddToCart(ctx, 3); err != nil {
		t.Fatalf("add again: %v", err)
	}
	if !a.Cart.Total().Equal(decimal.RequireFromString("27.60")) {
		t.Fatalf("total = %s, want 27.60", a.Cart.Total())
	}
	count, err := a.CartCount(ctx)
	if err != nil || count != 2 {
		t.Fatalf("count = %d err=%v", count, err)
	}

	a.SignOut(ctx)
	if a.Cart.Cart() != nil {
		t.Fatalf("sign-out must clear the cart")
	}
}

func TestActionsRequireLogin(t *testing.T) {
	srv := newBackendServer(t)
	a := newApp(t, srv.URL+"/api", nil)
	ctx := context.Background()

	if err := a.AddToCart(ctx, 3); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("add: got %v", err)
	}
	if _, err := a.CartCount(ctx); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("count: got %v", err)
	}
	if _, err := a.UpdateProfile(ctx, domain.UserUpdate{}); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("profile: got %v", err)
	}
	if _, err := a.Subscribe(ctx, "", 0); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("subscribe: got %v", err)
	}
}

func TestUnauthorizedForcesReauth(t *testing.T) {
	srv := newBackendServer(t)
	a := newApp(t, srv.URL+"/api", nil)
	ctx := context.Background()

	a.Session.Login(ctx, "not-a-valid-token", domain.User{ID: 1})
	a.Cart.Wait()

	name := "Anna"
	_, err := a.UpdateProfile(ctx, domain.UserUpdate{FirstName: &name})
	if !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("expected reauth error, got %v", err)
	}
	if a.Session.IsAuthenticated() {
		t.Fatalf("session must be cleared after a 401")
	}
}

func TestUpdateProfileKeepsSession(t *testing.T) {
	srv := newBackendServer(t)
	a := newApp(t, srv.URL+"/api", nil)
	ctx := context.Background()
	if _, err := a.SignIn(ctx, "ana@example.com", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	a.Cart.Wait()
	token := a.Session.Token()

	name := "Anna"
	user, err := a.UpdateProfile(ctx, domain.UserUpdate{FirstName: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if user.FirstName != "Anna" || a.Session.User().FirstName != "Anna" || a.Session.Token() != token {
		t.Fatalf("unexpected session after update: %+v", a.Session.Snapshot())
	}
}

func TestStartDropsExpiredSession(t *testing.T) {
	srv := newBackendServer(t)
	store := kvstore.NewMemoryBackend()
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	seed := newApp(t, srv.URL+"/api", store)
	seed.Session.Login(context.Background(), expired, domain.User{ID: 1})

	a := newApp(t, srv.URL+"/api", store)
	if !a.Session.IsAuthenticated() {
		t.Fatalf("persisted session should be restored before Start")
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if a.Session.IsAuthenticated() {
		t.Fatalf("expired session must be dropped")
	}
}

func TestSessionSharedBetweenApps(t *testing.T) {
	srv := newBackendServer(t)
	store := kvstore.NewMemoryBackend()
	first := newApp(t, srv.URL+"/api", store)
	second := newApp(t, srv.URL+"/api", store)
	ctx := context.Background()

	if _, err := first.SignIn(ctx, "ana@example.com", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	first.Cart.Wait()
	second.Cart.Wait()
	if !second.Session.IsAuthenticated() || second.Cart.Cart() == nil {
		t.Fatalf("second app should follow the shared session")
	}

	second.SignOut(ctx)
	if first.Session.IsAuthenticated() || first.Cart.Cart() != nil {
		t.Fatalf("sign-out must propagate")
	}
}

func TestCatalogDegradesWhenBackendIsDown(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	a := newApp(t, url+"/api", nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	view := a.Catalog.View()
	if !view.Degraded || view.Count != len(catalog.Dataset()) {
		t.Fatalf("expected the bundled catalogue, got degraded=%v count=%d", view.Degraded, view.Count)
	}
}

func TestSubscribeWithCoffee(t *testing.T) {
	srv := newBackendServer(t)
	a := newApp(t, srv.URL+"/api", nil)
	ctx := context.Background()
	if _, err := a.SignIn(ctx, "ana@example.com", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	a.Cart.Wait()
	conf, err := a.Subscribe(ctx, "12months", 5)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if conf.Quote.Coffee != "Kenya AA Nyeri" || conf.UserID == 0 {
		t.Fatalf("unexpected confirmation %+v", conf)
	}
}

func TestOpenBackendDrivers(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	cases := []StorageConfig{
		{Driver: "memory"},
		{Driver: "file", Dir: filepath.Join(dir, "files")},
		{Driver: "sqlite", SQLitePath: filepath.Join(dir, "db", "storefront.db")},
		{Driver: "redis", RedisAddr: mr.Addr()},
	}
	for _, cfg := range cases {
		t.Run(cfg.Driver, func(t *testing.T) {
			backend, err := OpenBackend(ctx, cfg, testLogger())
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer backend.Close()
			if err := backend.Set(ctx, "k", []byte(`"v"`)); err != nil {
				t.Fatalf("set: %v", err)
			}
			got, err := backend.Get(ctx, "k")
			if err != nil || string(got) != `"v"` {
				t.Fatalf("get = %q err=%v", got, err)
			}
		})
	}

	if _, err := OpenBackend(ctx, StorageConfig{Driver: "etcd"}, testLogger()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
