package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"heritagecoffee/internal/util"
)

func newTestClient(t *testing.T, baseURL string, tokens TokenSource, metrics *Metrics) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL: baseURL,
		Tokens:  tokens,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: metrics,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func staticToken(token string) TokenSource {
	return func(context.Context) (string, bool) { return token, token != "" }
}

func TestBuildHeadersDefaults(t *testing.T) {
	c := newTestClient(t, "http://example.test/api", nil, nil)
	h := c.BuildHeaders(context.Background(), HeaderOptions{})

	want := map[string]string{
		"Accept":           "application/json",
		"Accept-Language":  "fr-FR,fr;q=0.9,en;q=0.8",
		"X-Requested-With": "XMLHttpRequest",
		"X-Client-Version": "1.0.0",
		"Cache-Control":    "no-cache, no-store, must-revalidate",
		"Pragma":           "no-cache",
		"Content-Type":     "application/json; charset=UTF-8",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Fatalf("header %s: got %q want %q", k, got, v)
		}
	}
	if h.Get(util.RequestIDHeader) == "" {
		t.Fatalf("expected a generated request id")
	}
	if h.Get("Authorization") != "" {
		t.Fatalf("authorization must not be sent unless requested")
	}
}

func TestBuildHeadersContentTypes(t *testing.T) {
	c := newTestClient(t, "http://example.test/api", nil, nil)
	ctx := context.Background()
	if got := c.BuildHeaders(ctx, HeaderOptions{ContentType: ContentForm}).Get("Content-Type"); got != "application/x-www-form-urlencoded; charset=UTF-8" {
		t.Fatalf("unexpected form content type %q", got)
	}
	for _, ct := range []ContentType{ContentMultipart, ContentNone} {
		if got := c.BuildHeaders(ctx, HeaderOptions{ContentType: ct}).Get("Content-Type"); got != "" {
			t.Fatalf("content type must be omitted for %d, got %q", ct, got)
		}
	}
}

func TestBuildHeadersAuthAndExtras(t *testing.T) {
	c := newTestClient(t, "http://example.test/api", staticToken("abc"), nil)
	ctx := util.WithRequestID(context.Background(), "req-1")
	h := c.BuildHeaders(ctx, HeaderOptions{
		IncludeAuth: true,
		Accept:      "text/plain",
		Extra:       map[string]string{"X-Client-Version": "2.0.0", "X-Trace": "on"},
	})
	if h.Get("Authorization") != "Bearer abc" {
		t.Fatalf("unexpected authorization %q", h.Get("Authorization"))
	}
	if h.Get("Accept") != "text/plain" {
		t.Fatalf("accept override ignored")
	}
	if h.Get("X-Client-Version") != "2.0.0" || h.Get("X-Trace") != "on" {
		t.Fatalf("extra headers not applied: %v", h)
	}
	if h.Get(util.RequestIDHeader) != "req-1" {
		t.Fatalf("request id from context not used: %q", h.Get(util.RequestIDHeader))
	}
}

func TestBuildHeadersMissingTokenProceedsAnonymously(t *testing.T) {
	c := newTestClient(t, "http://example.test/api", staticToken(""), nil)
	h := c.BuildHeaders(context.Background(), HeaderOptions{IncludeAuth: true})
	if h.Get("Authorization") != "" {
		t.Fatalf("expected no authorization header without token")
	}
}

func TestDoDecodesResponseAndRecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/things" || r.URL.Query().Get("q") != "kenya" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["name"] != "x" {
			t.Errorf("unexpected body %v err=%v", body, err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := newTestClient(t, srv.URL+"/api/", staticToken("tok"), metrics)

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.Do(context.Background(), Request{
		Op:      "things.create",
		Method:  http.MethodPost,
		Path:    "/things",
		Query:   url.Values{"q": {"kenya"}},
		Body:    map[string]string{"name": "x"},
		Headers: HeaderOptions{IncludeAuth: true},
	}, &out)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if !out.OK {
		t.Fatalf("response not decoded")
	}
	if got := testutil.ToFloat64(metrics.requests.WithLabelValues("things.create", "POST", "200")); got != 1 {
		t.Fatalf("expected one recorded request, got %v", got)
	}
}

func TestDoReturnsAPIErrorForPlainTextFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Cart or product not found"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)
	err := c.Do(context.Background(), Request{Op: "cart.add", Method: http.MethodPost, Path: "/carts/1/products/2"}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T %v", err, err)
	}
	if apiErr.Status != 404 || apiErr.Message != "Cart or product not found" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestDoTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	c := newTestClient(t, baseURL, nil, nil)
	err := c.Do(context.Background(), Request{Op: "products.list", Path: "/products"}, nil)
	if KindOf(err) != KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestDoRejectsUndecodableSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)
	var out map[string]any
	err := c.Do(context.Background(), Request{Op: "products.get", Path: "/products/1"}, &out)
	if KindOf(err) != KindProtocol {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestNewClientDefaultsBaseURL(t *testing.T) {
	c := newTestClient(t, "", nil, nil)
	if c.BaseURL() != DefaultBaseURL {
		t.Fatalf("unexpected base url %q", c.BaseURL())
	}
	if _, err := NewClient(Options{BaseURL: "not a url"}); err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestNilMetricsAreNoOp(t *testing.T) {
	var m *Metrics
	m.observe("op", "GET", "200", 0)
	NewMetrics(nil).observe("op", "GET", "200", 0)
}
