package util

import (
	"context"
	"log/slog"
	"strings"
)

type requestIDContextKey string

const (
	// RequestIDHeader carries the correlation id on outgoing requests.
	RequestIDHeader          = "X-Request-Id"
	requestIDCtxKey          = requestIDContextKey("request_id")
	defaultRequestIDFallback = ""
)

// WithRequestID returns a context carrying requestID (generated when blank)
// and a child logger tagged with it, so that every API call made on behalf
// of one user action shares a correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		requestID = NewID()
	}
	ctx = context.WithValue(ctx, requestIDCtxKey, requestID)
	logger := LoggerFromContext(ctx, slog.Default()).With("request_id", requestID)
	return ContextWithLogger(ctx, logger)
}

// RequestIDFromContext returns request id from context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return defaultRequestIDFallback
	}
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}
