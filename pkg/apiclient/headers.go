package apiclient

import (
	"context"
	"net/http"

	"heritagecoffee/internal/util"
)

// ContentType selects the request body encoding. The zero value is JSON.
type ContentType int

const (
	ContentJSON ContentType = iota
	ContentForm
	ContentMultipart
	ContentNone
)

const (
	DefaultAccept         = "application/json"
	DefaultAcceptLanguage = "fr-FR,fr;q=0.9,en;q=0.8"
	DefaultClientVersion  = "1.0.0"

	jsonContentType = "application/json; charset=UTF-8"
	formContentType = "application/x-www-form-urlencoded; charset=UTF-8"
)

// HeaderOptions describes the headers of one request.
type HeaderOptions struct {
	IncludeAuth bool
	ContentType ContentType
	Accept      string
	// Extra headers are applied last and override computed ones.
	Extra map[string]string
}

// TokenSource returns the bearer token, reading persisted state fresh.
type TokenSource func(ctx context.Context) (string, bool)

// BuildHeaders composes the outgoing headers. A missing token with
// IncludeAuth set is logged and the request proceeds anonymously.
func (c *Client) BuildHeaders(ctx context.Context, opts HeaderOptions) http.Header {
	h := make(http.Header)
	accept := opts.Accept
	if accept == "" {
		accept = DefaultAccept
	}
	h.Set("Accept", accept)
	h.Set("Accept-Language", c.acceptLanguage)
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("X-Client-Version", c.clientVersion)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")

	requestID := util.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = util.NewID()
	}
	h.Set(util.RequestIDHeader, requestID)

	switch opts.ContentType {
	case ContentJSON:
		h.Set("Content-Type", jsonContentType)
	case ContentForm:
		h.Set("Content-Type", formContentType)
	}

	if opts.IncludeAuth {
		token, ok := "", false
		if c.tokens != nil {
			token, ok = c.tokens(ctx)
		}
		if ok && token != "" {
			h.Set("Authorization", "Bearer "+token)
		} else {
			util.LoggerFromContext(ctx, c.logger).Warn("authentication requested but no token is stored")
		}
	}

	for k, v := range opts.Extra {
		h.Set(k, v)
	}
	return h
}
