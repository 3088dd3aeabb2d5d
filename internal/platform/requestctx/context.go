// Package requestctx carries per-request values (logger, trace metadata) across package boundaries
// without import cycles between observability, httpx and handlers.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	traceKey  struct{}
	userKey   struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// HasLogger reports whether a non-noop logger is attached.
func HasLogger(ctx context.Context) bool {
	return ctx != nil && Logger(ctx) != noopLogger
}

// WithTrace stores the trace metadata on the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(ctx, traceKey{}, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

type userSlot struct{ id string }

// WithUserSlot reserves a slot that inner middleware fills with the authenticated account id,
// making it visible to outer middleware that logs after the handler returns.
func WithUserSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, userKey{}, &userSlot{})
}

// SetUserID records the authenticated account id in the slot, if one was reserved.
func SetUserID(ctx context.Context, id string) {
	if slot, ok := ctx.Value(userKey{}).(*userSlot); ok {
		slot.id = id
	}
}

// UserID returns the account id recorded for the request.
func UserID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if slot, ok := ctx.Value(userKey{}).(*userSlot); ok {
		return slot.id
	}
	return ""
}
