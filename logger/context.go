package logger

import (
	"context"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
)

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored by NewContext, or fallback. A request
// id stored with WithRequestID is attached as the "requestId" field.
func FromContext(ctx context.Context, fallback Logger) Logger {
	if ctx == nil {
		return fallback
	}
	l, ok := ctx.Value(loggerKey).(Logger)
	if !ok || l == nil {
		l = fallback
	}
	if l == nil {
		return nil
	}
	if id := RequestIDFromContext(ctx); id != "" {
		return l.WithFields(map[string]any{"requestId": id})
	}
	return l
}

// WithRequestID stores the id of the request being served.
func WithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the id stored by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
