// Package apiclient is the HTTP layer shared by the storefront resource
// clients: header composition, bearer token lookup, error extraction and
// response decoding.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"heritagecoffee/internal/util"
)

const (
	DefaultBaseURL = "http://localhost:3000/api"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	AcceptLanguage string
	ClientVersion  string
	// Translations replaces DefaultTranslations when non-nil.
	Translations map[string]string
	Tokens       TokenSource
	Logger       *slog.Logger
	Metrics      *Metrics
	// HTTPClient overrides the default client (timeout and cookie jar).
	HTTPClient *http.Client
}

// Client sends requests to the storefront REST backend.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	acceptLanguage string
	clientVersion  string
	translations   map[string]string
	tokens         TokenSource
	logger         *slog.Logger
	metrics        *Metrics
}

// NewClient constructs a client from opts.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout, Jar: jar}
	}
	c := &Client{
		baseURL:        baseURL,
		httpClient:     httpClient,
		acceptLanguage: opts.AcceptLanguage,
		clientVersion:  opts.ClientVersion,
		translations:   opts.Translations,
		tokens:         opts.Tokens,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
	if c.acceptLanguage == "" {
		c.acceptLanguage = DefaultAcceptLanguage
	}
	if c.clientVersion == "" {
		c.clientVersion = DefaultClientVersion
	}
	if c.translations == nil {
		c.translations = DefaultTranslations
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Translations returns the message translation table in use.
func (c *Client) Translations() map[string]string {
	return c.translations
}

// Request describes one call.
type Request struct {
	// Op names the operation in logs and metrics, e.g. "cart.add".
	Op     string
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded for ContentJSON, must be url.Values for
	// ContentForm and an io.Reader otherwise.
	Body    any
	Headers HeaderOptions
}

// Do sends req and decodes a successful JSON response into out (which may
// be nil). Failures are returned as *APIError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	raw, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Message: decodeMessage, Raw: string(raw), Kind: KindProtocol, Err: fmt.Errorf("decode %s: %w", req.Op, err)}
	}
	return nil
}

// DoRaw sends req and returns the body of a successful response.
func (c *Client) DoRaw(ctx context.Context, req Request) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := util.LoggerFromContext(ctx, c.logger).With("op", req.Op)
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	body, err := encodeBody(req.Headers.ContentType, req.Body)
	if err != nil {
		return nil, ValidationError(fmt.Errorf("encode %s body: %w", req.Op, err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.url(req.Path, req.Query), body)
	if err != nil {
		return nil, &APIError{Message: transportMessage, Kind: KindTransport, Err: err}
	}
	httpReq.Header = c.BuildHeaders(ctx, req.Headers)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.observe(req.Op, method, "error", time.Since(start))
		logger.Error("request failed", "method", method, "path", req.Path, "err", err)
		return nil, &APIError{Message: transportMessage, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.observe(req.Op, method, fmt.Sprint(resp.StatusCode), time.Since(start))
	if err != nil {
		logger.Error("read response failed", "status", resp.StatusCode, "err", err)
		return nil, &APIError{Status: resp.StatusCode, Message: transportMessage, Kind: KindTransport, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := ExtractError(resp.StatusCode, data, c.translations)
		logger.Warn("request rejected", "method", method, "path", req.Path, "status", resp.StatusCode, "message", apiErr.Raw)
		return nil, apiErr
	}
	logger.Debug("request ok", "method", method, "path", req.Path, "status", resp.StatusCode)
	return data, nil
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func encodeBody(ct ContentType, body any) (io.Reader, error) {
	if body == nil {
		return nil, nil
	}
	switch ct {
	case ContentJSON:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	case ContentForm:
		values, ok := body.(url.Values)
		if !ok {
			return nil, fmt.Errorf("form body must be url.Values, got %T", body)
		}
		return strings.NewReader(values.Encode()), nil
	default:
		r, ok := body.(io.Reader)
		if !ok {
			return nil, fmt.Errorf("raw body must be an io.Reader, got %T", body)
		}
		return r, nil
	}
}
