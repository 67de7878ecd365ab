package devbackend

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"heritagecoffee/internal/ratelimit"
	"heritagecoffee/pkg/domain"
)

func testProducts() []domain.Product {
	return []domain.Product{
		{ID: 1, Name: "Pérou Cajamarca", Price: decimal.RequireFromString("12.90"), Stock: 45, Images: []domain.Image{{ID: 1, Link: "peru.jpg"}}},
		{ID: 3, Name: "Indonésie Sumatra Mandheling", Price: decimal.RequireFromString("13.80"), Stock: 28},
	}
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Products == nil {
		cfg.Products = testProducts()
	}
	if cfg.Users == nil {
		cfg.Users = []SeedUser{{FirstName: "Ana", LastName: "Lopez", EmailAddress: "ana@example.com", Password: "secret1"}}
	}
	cfg.BcryptCost = bcrypt.MinCost
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func signIn(t *testing.T, baseURL string) domain.SignInResponse {
	t.Helper()
	resp, body := do(t, http.MethodPost, baseURL+"/api/users/signin", "", domain.SignInRequest{EmailAddress: "ana@example.com", Password: "secret1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signin status %d: %s", resp.StatusCode, body)
	}
	var out domain.SignInResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode signin: %v", err)
	}
	return out
}

func TestProductsUseCapitalizedImagesKey(t *testing.T) {
	srv := newTestServer(t, Config{})
	resp, body := do(t, http.MethodGet, srv.URL+"/api/products?search=cajamarca", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte(`"Images"`)) || !bytes.Contains(body, []byte(`"price":12.90`)) {
		t.Fatalf("unexpected product payload: %s", body)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/products/99", "", nil)
	if resp.StatusCode != http.StatusNotFound || string(body) != "Product not found" {
		t.Fatalf("expected plain-text 404, got %d %q", resp.StatusCode, body)
	}
}

func TestSignInFailures(t *testing.T) {
	srv := newTestServer(t, Config{})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/users/signin", "", domain.SignInRequest{EmailAddress: "nobody@example.com", Password: "x"})
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(string(body), "User not found") {
		t.Fatalf("unexpected unknown-user response %d %s", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodPost, srv.URL+"/api/users/signin", "", domain.SignInRequest{EmailAddress: "ana@example.com", Password: "wrong"})
	if resp.StatusCode != http.StatusUnauthorized || string(body) != "Authentication failed" {
		t.Fatalf("unexpected bad-password response %d %s", resp.StatusCode, body)
	}
}

func TestSignUpErrors(t *testing.T) {
	srv := newTestServer(t, Config{})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/users/signup", "", domain.SignUpRequest{FirstName: "A", LastName: "B", EmailAddress: "ana@example.com", Password: "secret1"})
	if resp.StatusCode != http.StatusConflict || !strings.Contains(string(body), "Email déjà utilisé") {
		t.Fatalf("expected 409 for duplicate email, got %d %s", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodPost, srv.URL+"/api/users/signup", "", domain.SignUpRequest{FirstName: "A", LastName: "B", EmailAddress: "not-an-email", Password: "secret1"})
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(body), "SequelizeValidationError") {
		t.Fatalf("expected ORM validation payload, got %d %s", resp.StatusCode, body)
	}
}

func TestCartLifecycle(t *testing.T) {
	srv := newTestServer(t, Config{})
	session := signIn(t, srv.URL)
	base := srv.URL + "/api/carts"

	resp, body := do(t, http.MethodGet, base+"/user/1", "", nil)
	if resp.StatusCode != http.StatusUnauthorized || string(body) != "Unauthorized" {
		t.Fatalf("expected plain-text 401 without token, got %d %q", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, base+"/user/1", session.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get cart: %d %s", resp.StatusCode, body)
	}
	var cart struct {
		ID       int64             `json:"id"`
		Total    json.Number       `json:"total"`
		Products []json.RawMessage `json:"Products"`
	}
	if err := json.Unmarshal(body, &cart); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(cart.Products) != 0 || cart.Total.String() != "0.00" {
		t.Fatalf("expected empty cart, got %s", body)
	}

	resp, body = do(t, http.MethodPost, base+"/1/products/3", session.Token, nil)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`"total":13.80`)) {
		t.Fatalf("add product: %d %s", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodPost, base+"/1/products/3", session.Token, nil)
	if !bytes.Contains(body, []byte(`"total":27.60`)) {
		t.Fatalf("duplicates must be kept: %s", body)
	}
	resp, body = do(t, http.MethodGet, base+"/user/1/count", session.Token, nil)
	if strings.TrimSpace(string(body)) != "2" {
		t.Fatalf("expected bare integer count, got %q", body)
	}
	resp, body = do(t, http.MethodPost, base+"/1/products/42", session.Token, nil)
	if resp.StatusCode != http.StatusNotFound || string(body) != "Cart or product not found" {
		t.Fatalf("expected plain-text 404, got %d %q", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodDelete, base+"/1/products/3", session.Token, nil)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`"total":13.80`)) {
		t.Fatalf("remove product: %d %s", resp.StatusCode, body)
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	now := time.Now()
	srv := newTestServer(t, Config{Now: func() time.Time { return now }, TokenTTL: time.Minute})
	session := signIn(t, srv.URL)

	now = now.Add(2 * time.Minute)
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/users/1", session.Token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected expired token to be rejected, got %d", resp.StatusCode)
	}
}

func TestUpdateUserKeepsPasswordWhenOmitted(t *testing.T) {
	srv := newTestServer(t, Config{})
	session := signIn(t, srv.URL)
	name := "Ana-Maria"
	resp, body := do(t, http.MethodPut, srv.URL+"/api/users/1", session.Token, domain.UserUpdate{FirstName: &name})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Ana-Maria") {
		t.Fatalf("update: %d %s", resp.StatusCode, body)
	}
	signIn(t, srv.URL)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/users/2", session.Token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("reading another user must be refused, got %d", resp.StatusCode)
	}
}

func TestSignInIsRateLimited(t *testing.T) {
	limiter, err := ratelimit.NewMemoryFixedWindow(1, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	srv := newTestServer(t, Config{AuthLimiter: limiter})
	signIn(t, srv.URL)
	resp, _ := do(t, http.MethodPost, srv.URL+"/api/users/signin", "", domain.SignInRequest{EmailAddress: "ana@example.com", Password: "secret1"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}
